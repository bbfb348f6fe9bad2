package types

import (
	"net/http"
	"regexp"
	"strings"
)

// Cors configures the preflight/actual-request CORS headers applied before
// a request reaches the Engine.IO dispatcher. Origin/Methods/AllowedHeaders/
// ExposedHeaders accept the same loosely-typed shapes the teacher's Cors
// struct does (string, []string, *regexp.Regexp, bool, or a predicate) so a
// host can pick whatever shape is most convenient.
type Cors struct {
	// Origin supports string, []string, *regexp.Regexp, bool, or
	// func(origin string) bool.
	Origin any
	// Methods supports string or []string.
	Methods any
	// AllowedHeaders supports nil, string, or []string; falls back to
	// reflecting the request's Access-Control-Request-Headers when nil.
	AllowedHeaders any
	// ExposedHeaders supports string or []string.
	ExposedHeaders       any
	MaxAge               string
	Credentials          bool
	PreflightContinue    bool
	OptionsSuccessStatus int
}

type corsApply struct {
	options *Cors
	w       http.ResponseWriter
	r       *http.Request
	headers []kv
	varys   []string
}

type kv struct{ key, value string }

func isOriginAllowed(origin string, allowed any) bool {
	switch v := allowed.(type) {
	case []any:
		for _, value := range v {
			if isOriginAllowed(origin, value) {
				return true
			}
		}
	case []string:
		for _, value := range v {
			if isOriginAllowed(origin, value) {
				return true
			}
		}
	case string:
		return origin == v
	case *regexp.Regexp:
		return v.MatchString(origin)
	case bool:
		return v
	case func(string) bool:
		return v(origin)
	}
	return false
}

func (c *corsApply) configureOrigin() *corsApply {
	requestOrigin := c.r.Header.Get("Origin")
	if o, ok := c.options.Origin.(string); ok {
		if o == "*" {
			c.headers = append(c.headers, kv{"Access-Control-Allow-Origin", "*"})
		} else {
			c.headers = append(c.headers, kv{"Access-Control-Allow-Origin", o})
			c.varys = append(c.varys, "Origin")
		}
	} else if isOriginAllowed(requestOrigin, c.options.Origin) {
		c.headers = append(c.headers, kv{"Access-Control-Allow-Origin", requestOrigin})
		c.varys = append(c.varys, "Origin")
	} else {
		c.headers = append(c.headers, kv{"Access-Control-Allow-Origin", "false"})
		c.varys = append(c.varys, "Origin")
	}
	return c
}

func (c *corsApply) configureMethods() *corsApply {
	switch methods := c.options.Methods.(type) {
	case string:
		c.headers = append(c.headers, kv{"Access-Control-Allow-Methods", methods})
	case []string:
		c.headers = append(c.headers, kv{"Access-Control-Allow-Methods", strings.Join(methods, ",")})
	}
	return c
}

func (c *corsApply) configureCredentials() *corsApply {
	if c.options.Credentials {
		c.headers = append(c.headers, kv{"Access-Control-Allow-Credentials", "true"})
	}
	return c
}

func (c *corsApply) configureAllowedHeaders() *corsApply {
	switch h := c.options.AllowedHeaders.(type) {
	case nil:
		if req := c.r.Header.Get("Access-Control-Request-Headers"); req != "" {
			c.headers = append(c.headers, kv{"Access-Control-Allow-Headers", req})
			c.varys = append(c.varys, "Access-Control-Request-Headers")
		}
	case string:
		if h != "" {
			c.headers = append(c.headers, kv{"Access-Control-Allow-Headers", h})
		}
	case []string:
		if len(h) > 0 {
			c.headers = append(c.headers, kv{"Access-Control-Allow-Headers", strings.Join(h, ",")})
		}
	}
	return c
}

func (c *corsApply) configureExposedHeaders() *corsApply {
	switch headers := c.options.ExposedHeaders.(type) {
	case string:
		if headers != "" {
			c.headers = append(c.headers, kv{"Access-Control-Expose-Headers", headers})
		}
	case []string:
		if len(headers) > 0 {
			c.headers = append(c.headers, kv{"Access-Control-Expose-Headers", strings.Join(headers, ",")})
		}
	}
	return c
}

func (c *corsApply) configureMaxAge() *corsApply {
	if c.options.MaxAge != "" {
		c.headers = append(c.headers, kv{"Access-Control-Max-Age", c.options.MaxAge})
	}
	return c
}

func parseVary(vary string) *Set[string] {
	list := NewSet[string]()
	for _, tok := range strings.Split(vary, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			list.Add(tok)
		}
	}
	return list
}

func (c *corsApply) applyHeaders() *corsApply {
	for _, h := range c.headers {
		c.w.Header().Set(h.key, h.value)
	}
	if vary := c.w.Header().Get("Vary"); vary == "*" {
		c.w.Header().Set("Vary", "*")
	} else if len(c.varys) > 0 {
		varys := parseVary(vary)
		varys.Add(c.varys...)
		c.w.Header().Set("Vary", strings.Join(varys.Keys(), ", "))
	}
	return c
}

var defaultCors = &Cors{
	Origin:               "*",
	Methods:              "GET,HEAD,PUT,PATCH,POST,DELETE",
	PreflightContinue:    false,
	OptionsSuccessStatus: http.StatusNoContent,
}

// CorsMiddleware applies CORS headers for a single request/response pair,
// short-circuiting preflight OPTIONS requests unless PreflightContinue is
// set. next is called with a nil error once headers are applied (CORS
// itself never rejects a request).
func CorsMiddleware(options *Cors, w http.ResponseWriter, r *http.Request, next func(error)) {
	if options == nil {
		options = defaultCors
	}
	if options.Origin == nil {
		next(nil)
		return
	}
	if options.Methods == nil {
		options.Methods = defaultCors.Methods
	}
	if options.OptionsSuccessStatus == 0 {
		options.OptionsSuccessStatus = defaultCors.OptionsSuccessStatus
	}

	c := &corsApply{options: options, w: w, r: r}

	if r.Method == http.MethodOptions {
		c.configureOrigin().configureCredentials().configureMethods().
			configureAllowedHeaders().configureMaxAge().configureExposedHeaders().applyHeaders()
		if options.PreflightContinue {
			next(nil)
			return
		}
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(options.OptionsSuccessStatus)
		return
	}

	c.configureOrigin().configureCredentials().configureExposedHeaders().applyHeaders()
	next(nil)
}
