package bwapp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/advdv/bworker"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LambdaContextHeader carries the invocation context forwarded by the Lambda Web Adapter.
const LambdaContextHeader = "x-amzn-lambda-context"

type ctxKey int

const ctxKeyLWAContext ctxKey = iota

// LWAContext contains the Lambda execution context of the invocation.
type LWAContext struct {
	RequestID          string       `json:"request_id"`
	Deadline           int64        `json:"deadline"`
	InvokedFunctionARN string       `json:"invoked_function_arn"`
	XRayTraceID        string       `json:"xray_trace_id"`
	EnvConfig          LWAEnvConfig `json:"env_config"`
}

// LWAEnvConfig contains the function's environment configuration.
type LWAEnvConfig struct {
	FunctionName string `json:"function_name"`
	Memory       int    `json:"memory"`
	Version      string `json:"version"`
	LogGroup     string `json:"log_group"`
	LogStream    string `json:"log_stream"`
}

// DeadlineTime returns the invocation deadline, or the zero time if unknown.
func (lc *LWAContext) DeadlineTime() time.Time {
	if lc.Deadline == 0 {
		return time.Time{}
	}

	return time.UnixMilli(lc.Deadline)
}

// RemainingTime returns the duration until the invocation deadline.
func (lc *LWAContext) RemainingTime() time.Duration {
	if lc.Deadline == 0 {
		return 0
	}

	return max(time.Until(lc.DeadlineTime()), 0)
}

// LWA retrieves the LWAContext. It returns nil outside of Lambda.
func LWA(ctx context.Context) *LWAContext {
	lc, _ := ctx.Value(ctxKeyLWAContext).(*LWAContext)
	return lc
}

// Span returns the current trace span.
func Span(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// setContext replaces the request scoped context of c.
func setContext[E bworker.Environment](c *bworker.Context[E], ctx context.Context) {
	c.Context = ctx
	c.Request = c.Request.WithContext(ctx)
}

// withLWAContext parses the adapter's context header. A malformed header is logged and
// ignored.
func withLWAContext[E bworker.Environment]() bworker.Middleware[E] {
	return func(c *bworker.Context[E], next bworker.Next) (*bworker.Response, error) {
		if header := c.Request.Header.Get(LambdaContextHeader); header != "" {
			var lc LWAContext
			if err := json.Unmarshal([]byte(header), &lc); err != nil {
				c.Log.Warn("ignoring malformed lambda context", zap.Error(err))
			} else {
				setContext(c, context.WithValue(c.Context, ctxKeyLWAContext, &lc))
				c.Log = c.Log.With(zap.String("aws_request_id", lc.RequestID))
			}
		}

		return next()
	}
}

// withTraceFields adds the trace and span id to the request's logger.
func withTraceFields[E bworker.Environment]() bworker.Middleware[E] {
	return func(c *bworker.Context[E], next bworker.Next) (*bworker.Response, error) {
		if sc := trace.SpanContextFromContext(c); sc.IsValid() {
			c.Log = c.Log.With(
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()))
		}

		return next()
	}
}
