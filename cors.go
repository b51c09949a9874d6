package bworker

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"
)

const (
	DefaultCORSMethods = "GET, POST, PUT, DELETE, OPTIONS"
	DefaultCORSHeaders = "Content-Type, Authorization"
	DefaultCORSMaxAge  = "86400"

	wildcardOrigin = "*"
)

// OriginFunc decides the allowed origin for a request. The returned origin is emitted verbatim,
// returning false omits the Access-Control-Allow-Origin header. Echoing the request's Origin also
// adds "Vary: Origin". A panic is logged and treated as a denial.
type OriginFunc[E Environment] func(r *http.Request, env E, data Data) (string, bool)

// CORSConfig configures the CORS headers of a router or handler.
type CORSConfig[E Environment] struct {
	// Origins lists the allowed origins. A single "*" allows any origin, nil allows none.
	Origins []string

	// OriginFunc takes precedence over Origins when set.
	OriginFunc OriginFunc[E]

	// Methods, Headers and MaxAge override the defaults when not empty.
	Methods string
	Headers string
	MaxAge  string

	// ExposeHeaders is emitted as Access-Control-Expose-Headers when not empty.
	ExposeHeaders string

	// Credentials adds Access-Control-Allow-Credentials, but only together with a specific origin.
	Credentials bool
}

// CORSDecider can be implemented by handlers that decide the allowed origin per request. The
// decision takes precedence over the router's origin configuration, for preflight and actual
// requests alike.
type CORSDecider[E Environment] interface {
	DecideCORSOrigin(r *http.Request, env E, data Data) (string, bool)
}

// Validate checks that the header lists only contain valid header field names.
func (cfg *CORSConfig[E]) Validate() error {
	for _, list := range []string{cfg.Headers, cfg.ExposeHeaders} {
		for _, name := range splitList(list) {
			if !httpguts.ValidHeaderFieldName(name) {
				return errors.Newf("invalid header name in cors config: %q", name)
			}
		}
	}

	for _, method := range splitList(cfg.Methods) {
		if !httpguts.ValidHeaderFieldName(method) {
			return errors.Newf("invalid method in cors config: %q", method)
		}
	}

	return nil
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(v string, _ int) string {
		return strings.TrimSpace(v)
	}))
}

// effectiveCORS determines the configuration for a request: a handler's origin decision over the
// router's config over the defaults.
func effectiveCORS[E Environment](routerCfg *CORSConfig[E], h any) *CORSConfig[E] {
	var cfg CORSConfig[E]
	if routerCfg != nil {
		cfg = *routerCfg
	}

	if decider, ok := h.(CORSDecider[E]); ok {
		cfg.Origins = nil
		cfg.OriginFunc = decider.DecideCORSOrigin
	}

	return &cfg
}

// resolveOrigin returns the Access-Control-Allow-Origin value, if any, and whether the response
// varies by the request's Origin header. A decided origin that echoes the request's Origin varies
// by it just like a list match.
func resolveOrigin[E Environment](
	cfg *CORSConfig[E], r *http.Request, env E, data Data, logs *zap.Logger,
) (string, bool, bool) {
	reqOrigin := r.Header.Get("Origin")

	switch {
	case cfg == nil:
		return "", false, false
	case cfg.OriginFunc != nil:
		origin, ok := decideOrigin(cfg.OriginFunc, r, env, data, logs)
		if !ok || origin == "" {
			return "", false, false
		}

		return origin, origin != wildcardOrigin && origin == reqOrigin, true
	case len(cfg.Origins) == 1 && cfg.Origins[0] == wildcardOrigin:
		return wildcardOrigin, false, true
	}

	if reqOrigin == "" || !lo.Contains(cfg.Origins, reqOrigin) {
		return "", false, false
	}

	return reqOrigin, true, true
}

// decideOrigin calls the origin decision, a panic denies the origin.
func decideOrigin[E Environment](
	fn OriginFunc[E], r *http.Request, env E, data Data, logs *zap.Logger,
) (origin string, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			logs.Error("cors origin decision panicked", zap.Any("panic", v))
			origin, ok = "", false
		}
	}()

	return fn(r, env, data)
}

// buildCORSHeaders computes the CORS headers for a request.
func buildCORSHeaders[E Environment](
	cfg *CORSConfig[E], r *http.Request, env E, data Data, logs *zap.Logger,
) http.Header {
	if cfg == nil {
		cfg = &CORSConfig[E]{}
	}

	h := http.Header{}
	h.Set("Access-Control-Allow-Methods", lo.Ternary(cfg.Methods != "", cfg.Methods, DefaultCORSMethods))
	h.Set("Access-Control-Allow-Headers", lo.Ternary(cfg.Headers != "", cfg.Headers, DefaultCORSHeaders))
	h.Set("Access-Control-Max-Age", lo.Ternary(cfg.MaxAge != "", cfg.MaxAge, DefaultCORSMaxAge))

	origin, vary, ok := resolveOrigin(cfg, r, env, data, logs)
	if !ok {
		return h
	}

	h.Set("Access-Control-Allow-Origin", origin)
	if vary {
		h.Add("Vary", "Origin")
	}

	// browsers reject credentials on a wildcard origin
	if cfg.Credentials && origin != wildcardOrigin {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if cfg.ExposeHeaders != "" {
		h.Set("Access-Control-Expose-Headers", cfg.ExposeHeaders)
	}

	return h
}
