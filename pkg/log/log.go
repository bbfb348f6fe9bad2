// Package log provides a namespaced, colorized debug logger in the style of
// the Node.js "debug" package: loggers are created with a colon-separated
// namespace prefix, and output is gated by the DEBUG environment variable, which may
// contain a glob pattern such as "engineio:*" or "socketio:namespace".
package log

import (
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/gookit/color"
)

// Global configuration variables.
var (
	DEBUG  bool      = os.Getenv("DEBUG") != "" // Global debug flag
	Output io.Writer = os.Stderr                // Default output writer
	Flags  int       = 0                        // Default flags for all loggers
)

// Log is a namespaced logger instance.
type Log struct {
	*log.Logger

	prefix          atomic.Pointer[string]
	namespaceRegexp *regexp.Regexp
}

// NewLog creates a logger for the given namespace, e.g. "engineio:socket".
func NewLog(namespace string) *Log {
	l := &Log{
		Logger: log.New(Output, "", Flags),
	}
	if namespace != "" {
		l.SetPrefix(namespace)
	}
	if debug := os.Getenv("DEBUG"); debug != "" {
		pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(strings.TrimSpace(debug)), `\*`, `.*`) + "$"
		l.namespaceRegexp = regexp.MustCompile(pattern)
	}
	return l
}

func (d *Log) checkNamespace(namespace string) bool {
	if d.namespaceRegexp != nil {
		return d.namespaceRegexp.MatchString(namespace)
	}
	return false
}

// Debugf logs a formatted message, but only when DEBUG matches this logger's namespace.
func (d *Log) Debugf(message string, args ...any) {
	if DEBUG && d.checkNamespace(d.Prefix()) {
		d.Logger.Println(color.Debug.Sprintf(message, args...))
	}
}

// Debug is an alias for Debugf.
func (d *Log) Debug(message string, args ...any) {
	d.Debugf(message, args...)
}

// Errorf always logs a formatted message, regardless of DEBUG.
func (d *Log) Errorf(message string, args ...any) {
	d.Logger.Println(color.Danger.Sprintf(message, args...))
}

// Error is an alias for Errorf.
func (d *Log) Error(message string, args ...any) {
	d.Errorf(message, args...)
}

// Warningf always logs a formatted message, regardless of DEBUG.
func (d *Log) Warningf(message string, args ...any) {
	d.Logger.Println(color.Warn.Sprintf(message, args...))
}

// Warning is an alias for Warningf.
func (d *Log) Warning(message string, args ...any) {
	d.Warningf(message, args...)
}

// Prefix returns the logger's namespace.
func (d *Log) Prefix() string {
	if v := d.prefix.Load(); v != nil {
		return *v
	}
	return ""
}

// SetPrefix sets the logger's namespace.
func (d *Log) SetPrefix(namespace string) {
	d.prefix.Store(&namespace)
	d.Logger.SetPrefix(namespace + " ")
}
