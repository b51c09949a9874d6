package bworker

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment is implemented by the bindings a router is configured with. Embed
// [BaseEnvironment] in your struct to satisfy this interface.
type Environment interface {
	logLevel() (zapcore.Level, bool)
}

// BaseEnvironment carries the bindings the dispatch layer reads itself.
type BaseEnvironment struct {
	// LogLevel overrides the log level of every request's logger: trace, debug, info, warn,
	// error or fatal. Empty or invalid values leave the router logger's level in place.
	LogLevel string `env:"BW_LOG_LEVEL"`
}

func (e BaseEnvironment) logLevel() (zapcore.Level, bool) {
	if e.LogLevel == "" {
		return zapcore.InfoLevel, false
	}

	lvl, err := ParseLevel(e.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, false
	}

	return lvl, true
}

var _ Environment = BaseEnvironment{}

// Params holds the path parameters of a matched route.
type Params map[string]string

// Get returns the parameter value or an empty string.
func (p Params) Get(name string) string { return p[name] }

// Data is an open bag that middleware write to and later middleware and handlers read from.
type Data map[string]any

// Context is created for every request and discarded once the response is written.
type Context[E Environment] struct {
	context.Context

	Request  *http.Request
	Env      E
	Params   Params
	Data     Data
	Response *ResponseContext
	Log      *zap.Logger

	// State is the durable object state when served by an [ObjectRouter], nil otherwise.
	State *ObjectState
}

// newContext builds a fresh context. When the environment carries a log level the context gets
// a child logger with that level, the router's logger keeps its own.
func newContext[E Environment](
	r *http.Request, env E, params Params, logs *zap.Logger, state *ObjectState,
) *Context[E] {
	if lvl, ok := env.logLevel(); ok {
		logs = withLevel(logs, lvl)
	}

	if params == nil {
		params = Params{}
	}

	return &Context[E]{
		Context:  r.Context(),
		Request:  r,
		Env:      env,
		Params:   params,
		Data:     Data{},
		Response: NewResponseContext(),
		Log:      logs,
		State:    state,
	}
}

type ctxKey int

const ctxKeyEnv ctxKey = iota

// withEnv attaches a per-request environment to the request context.
func withEnv[E Environment](r *http.Request, env E) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ctxKeyEnv, env))
}

// envFrom returns the per-request environment, or def if none was attached.
func envFrom[E Environment](r *http.Request, def E) E {
	if env, ok := r.Context().Value(ctxKeyEnv).(E); ok {
		return env
	}

	return def
}
