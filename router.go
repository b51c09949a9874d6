package bworker

import (
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Option configures a router.
type Option[E Environment] func(*Router[E])

// WithLogger sets the logger, it defaults to a no-op logger.
func WithLogger[E Environment](logs *zap.Logger) Option[E] {
	return func(r *Router[E]) { r.logs = logs.Named("bworker") }
}

// WithCORS sets the router-level CORS configuration. It panics if the configuration is invalid.
func WithCORS[E Environment](cfg *CORSConfig[E]) Option[E] {
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			panic("bworker: " + err.Error())
		}
	}

	return func(r *Router[E]) { r.cors = cfg }
}

// WithRawResponseCORS controls whether CORS headers are added (if absent) to responses that
// handlers return directly. It is off by default: such responses are sent exactly as returned.
func WithRawResponseCORS[E Environment](enabled bool) Option[E] {
	return func(r *Router[E]) { r.rawCORS = enabled }
}

// WithServeMux sets the mux that routes are registered on, it defaults to a new mux.
func WithServeMux[E Environment](mux *http.ServeMux) Option[E] {
	return func(r *Router[E]) { r.mux = mux }
}

type route[E Environment] struct {
	pattern *Pattern
	handler Handler[E]
}

// Router maps requests to handlers and runs them through the middleware chain. Register
// middleware and handlers first, the router is built on first use or by calling [Router.Build].
type Router[E Environment] struct {
	env      E
	logs     *zap.Logger
	cors     *CORSConfig[E]
	rawCORS  bool
	mux      *http.ServeMux
	state    *ObjectState
	reverser *Reverser
	entries  []entry[E]
	routes   []route[E]
	shapes   map[string]string

	once  sync.Once
	built bool
}

// NewRouter creates a router that serves requests with env as the environment.
func NewRouter[E Environment](env E, opts ...Option[E]) *Router[E] {
	rtr := &Router[E]{
		env:      env,
		logs:     zap.NewNop(),
		mux:      http.NewServeMux(),
		reverser: NewReverser(),
		shapes:   map[string]string{},
	}

	for _, opt := range opts {
		opt(rtr)
	}

	return rtr
}

// Use adds global middleware.
func (rtr *Router[E]) Use(mw ...Middleware[E]) {
	rtr.UseMethod("", "", mw...)
}

// UseAt adds middleware that only runs for paths matching pattern.
func (rtr *Router[E]) UseAt(pattern string, mw ...Middleware[E]) {
	rtr.UseMethod("", pattern, mw...)
}

// UseMethod adds middleware for a method and pattern. An empty method matches every method, an
// empty pattern every path.
func (rtr *Router[E]) UseMethod(method, pattern string, mw ...Middleware[E]) {
	rtr.ensureNotBuilt()

	var pat *Pattern
	if pattern != "" {
		pat = MustParsePattern(pattern)
	}

	for _, m := range mw {
		rtr.entries = append(rtr.entries, entry[E]{pattern: pat, method: normalizeMethod(method), mw: m})
	}
}

// Handle registers a handler for the pattern. An optional name allows reversing the pattern.
func (rtr *Router[E]) Handle(pattern string, h Handler[E], name ...string) {
	rtr.ensureNotBuilt()

	var pat *Pattern
	if len(name) > 0 {
		pat = rtr.reverser.Named(name[0], pattern)
	} else {
		pat = MustParsePattern(pattern)
	}

	shape := pat.shape()
	if other, exists := rtr.shapes[shape]; exists {
		panic("bworker: pattern " + pattern + " conflicts with " + other)
	}

	rtr.shapes[shape] = pattern
	rtr.routes = append(rtr.routes, route[E]{pattern: pat, handler: h})
}

// HandleFactory registers the handler created by f.
func (rtr *Router[E]) HandleFactory(pattern string, f HandlerFactory[E], name ...string) {
	rtr.Handle(pattern, f(HandlerDeps{Logger: rtr.logs, State: rtr.state}), name...)
}

// HandleFunc registers a function that serves GET requests for the pattern.
func (rtr *Router[E]) HandleFunc(pattern string, f HandlerFunc[E], name ...string) {
	rtr.Handle(pattern, f.Handler(), name...)
}

// Reverse returns the url based on the name and parameter values.
func (rtr *Router[E]) Reverse(name string, vals ...string) (string, error) {
	return rtr.reverser.Reverse(name, vals...)
}

// Build registers the routes and the catch-all handlers on the mux. Calling it more than once
// returns the same handler without registering anything again.
func (rtr *Router[E]) Build() http.Handler {
	rtr.once.Do(func() {
		for _, rt := range rtr.routes {
			rtr.mux.Handle(rt.pattern.std(), rtr.serveRoute(rt))
		}

		rtr.mux.Handle("/", http.HandlerFunc(rtr.serveCatchAll))
		rtr.built = true
	})

	return rtr.mux
}

// ServeHTTP makes the router implement the http.Handler interface.
func (rtr *Router[E]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rtr.Build().ServeHTTP(w, r)
}

// Fetch serves the request with a per-request environment and returns the response.
func (rtr *Router[E]) Fetch(r *http.Request, env E) *Response {
	buf := newResponseBuffer()
	rtr.Build().ServeHTTP(buf, withEnv(r, env))

	return buf.Response()
}

func (rtr *Router[E]) ensureNotBuilt() {
	if rtr.built {
		panic("bworker: cannot register middleware or handlers after Build")
	}
}

func (rtr *Router[E]) newContext(r *http.Request, params Params) *Context[E] {
	c := newContext(r, envFrom(r, rtr.env), params, rtr.logs, rtr.state)
	logTrace(c.Log, "incoming request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))

	return c
}

func (rtr *Router[E]) serveRoute(rt route[E]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := rtr.newContext(r, rt.pattern.params(r))

		if r.Method == http.MethodOptions {
			rtr.write(c, w, rtr.preflight(c, rt.handler))
			return
		}

		resp, err := runChain(c, rtr.entries, rtr.terminal(rt.handler))
		if err != nil {
			resp = rtr.errorResponse(c, rt.handler, err)
		}

		rtr.write(c, w, resp)
	})
}

func (rtr *Router[E]) serveCatchAll(w http.ResponseWriter, r *http.Request) {
	c := rtr.newContext(r, nil)

	if r.Method == http.MethodOptions {
		rtr.write(c, w, rtr.preflight(c, nil))
		return
	}

	rtr.write(c, w, rtr.notFound(c))
}

// write delivers the response. A response that cannot be written is replaced by a generic 500.
func (rtr *Router[E]) write(c *Context[E], w http.ResponseWriter, resp *Response) {
	if err := resp.validate(); err != nil {
		resp = rtr.errorResponse(c, nil, errors.Wrap(err, "invalid response"))
	}

	if err := deliver(w, resp); err != nil {
		c.Log.Error("failed to write response", zap.Error(err))
	}
}
