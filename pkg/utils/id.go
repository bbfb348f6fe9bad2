// Package utils collects small ambient helpers (timers, id generation) that
// have no natural home in a single domain package.
package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"sync/atomic"
)

// idGenerator produces opaque, unguessable session ids: 10 random bytes
// followed by an 8-byte big-endian sequence counter, base64url-encoded
// without padding. The sequence counter guarantees uniqueness even if the
// random reader were ever to repeat within the same process lifetime.
type idGenerator struct {
	sequence atomic.Uint64
}

var defaultIdGenerator = &idGenerator{}

// GenerateId returns a fresh session id string.
func GenerateId() (string, error) {
	return defaultIdGenerator.generate()
}

func (g *idGenerator) generate() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(buf[10:], g.sequence.Add(1)-1)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
