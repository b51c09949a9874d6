package bwapp

import (
	"context"
	"time"

	"github.com/advdv/bworker"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Behind the Lambda Web Adapter the only client is the adapter on the loopback interface, so
// the server timeouts are not a defence against slow clients. They are an outer bound derived
// from the function timeout. The authoritative deadline is the invocation deadline from the
// lambda context header, applied per request by [WithRequestDeadline].

// DefaultDeadlineBuffer is reserved before the invocation deadline for writing a response.
const DefaultDeadlineBuffer = 500 * time.Millisecond

// TimeoutConfig holds timeout configuration for the HTTP server.
type TimeoutConfig struct {
	// LambdaTimeout is the configured function timeout.
	LambdaTimeout time.Duration

	// DeadlineBuffer defaults to DefaultDeadlineBuffer.
	DeadlineBuffer time.Duration
}

// ServerTimeouts returns the http.Server timeouts: the function timeout minus the buffer, with
// the header timeout capped at five seconds.
func (tc TimeoutConfig) ServerTimeouts() (readHeaderTimeout, readTimeout, writeTimeout, idleTimeout time.Duration) {
	buffer := tc.DeadlineBuffer
	if buffer <= 0 {
		buffer = DefaultDeadlineBuffer
	}

	timeout := tc.LambdaTimeout - buffer
	if timeout <= 0 {
		timeout = tc.LambdaTimeout
	}

	return min(timeout, 5*time.Second), timeout, timeout, timeout
}

// WithRequestDeadline sets the request's deadline to the invocation deadline minus the buffer.
// Without a lambda context, or once the adjusted deadline has passed, the request is served
// without a deadline.
func WithRequestDeadline[E bworker.Environment](buffer time.Duration) bworker.Middleware[E] {
	if buffer <= 0 {
		buffer = DefaultDeadlineBuffer
	}

	return func(c *bworker.Context[E], next bworker.Next) (*bworker.Response, error) {
		lc := LWA(c)
		if lc == nil || lc.DeadlineTime().IsZero() {
			return next()
		}

		deadline := lc.DeadlineTime().Add(-buffer)
		if time.Until(deadline) <= 0 {
			return next()
		}

		ctx, cancel := context.WithDeadline(c.Context, deadline)
		defer cancel()

		setContext(c, ctx)

		resp, err := next()
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.Log.Warn("request ran into the invocation deadline",
				zap.Time("deadline", deadline), zap.Error(err))
		}

		return resp, err
	}
}

// RequestRemainingTime returns the duration until the request's deadline, zero when there is
// none.
func RequestRemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}

	return max(time.Until(deadline), 0)
}
