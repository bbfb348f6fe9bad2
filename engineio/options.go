package engineio

import (
	"net/http"
	"time"

	"github.com/tristanpoland/socketioxide/pkg/types"
)

// TransportName identifies a configurable Engine.IO transport.
type TransportName string

const (
	TransportPolling   TransportName = "polling"
	TransportWebsocket TransportName = "websocket"
)

// CookieOptions describes a session-affinity cookie for sticky
// load-balancing. The Server stores it but does not read it; no cookie is
// set.
type CookieOptions struct {
	Name     string
	Path     string
	HTTPOnly bool
}

// CompressionOptions holds a payload-size compression threshold. The Server
// does not read HTTPCompression or PerMessageDeflate; the polling transport
// uses its own fixed threshold.
type CompressionOptions struct {
	Threshold int64
}

// ServerOptions configures a Server. Zero-value fields fall back to
// DefaultServerOptions' values via ApplyDefaults, except AllowUpgrades and
// HTTPCompression, which keep whatever the caller set.
type ServerOptions struct {
	Path              string
	PingInterval      time.Duration
	PingTimeout       time.Duration
	UpgradeTimeout    time.Duration
	MaxHTTPBufferSize int64
	MaxBufferSize     int64
	Transports        []TransportName
	AllowUpgrades     bool

	Cors               *types.Cors
	HTTPCompression    *CompressionOptions
	PerMessageDeflate  *CompressionOptions
	Cookie             *CookieOptions
	AllowRequest       func(*http.Request) error
}

// DefaultServerOptions mirrors the teacher's default Engine.IO server
// configuration.
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		Path:              "/engine.io/",
		PingInterval:      25 * time.Second,
		PingTimeout:       20 * time.Second,
		UpgradeTimeout:    10 * time.Second,
		MaxHTTPBufferSize: 1e6,
		MaxBufferSize:     1e6,
		Transports:        []TransportName{TransportPolling, TransportWebsocket},
		AllowUpgrades:     true,
		HTTPCompression:   &CompressionOptions{Threshold: 1024},
	}
}

// ApplyDefaults fills the zero-value Path, PingInterval, PingTimeout,
// UpgradeTimeout, MaxHTTPBufferSize, MaxBufferSize and Transports fields of
// o from DefaultServerOptions; a nil o yields DefaultServerOptions itself.
func (o *ServerOptions) ApplyDefaults() *ServerOptions {
	d := DefaultServerOptions()
	if o == nil {
		return d
	}
	if o.Path == "" {
		o.Path = d.Path
	}
	if o.PingInterval == 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PingTimeout == 0 {
		o.PingTimeout = d.PingTimeout
	}
	if o.UpgradeTimeout == 0 {
		o.UpgradeTimeout = d.UpgradeTimeout
	}
	if o.MaxHTTPBufferSize == 0 {
		o.MaxHTTPBufferSize = d.MaxHTTPBufferSize
	}
	if o.MaxBufferSize == 0 {
		o.MaxBufferSize = d.MaxBufferSize
	}
	if len(o.Transports) == 0 {
		o.Transports = d.Transports
	}
	return o
}

func (o *ServerOptions) transportAllowed(name TransportName) bool {
	for _, t := range o.Transports {
		if t == name {
			return true
		}
	}
	return false
}
