// Package example implements example middleware in an outside package.
package example

import (
	"strconv"
	"time"

	"github.com/advdv/bworker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "example.request-id"

// RequestID stores the request id in the data bag and echoes it in the response header. The id
// is taken from the request header when present, otherwise a UUIDv7 is generated.
func RequestID[E bworker.Environment](header string) bworker.Middleware[E] {
	return func(c *bworker.Context[E], next bworker.Next) (*bworker.Response, error) {
		id := c.Request.Header.Get(header)
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}

		c.Data[requestIDKey] = id
		c.Log = c.Log.With(zap.String("request_id", id))

		resp, err := next()
		if err != nil {
			return nil, err
		}

		resp.Header.Set(header, id)

		return resp, nil
	}
}

// RequestIDFrom returns the id stored by [RequestID].
func RequestIDFrom(data bworker.Data) string {
	v, _ := data[requestIDKey].(string)

	return v
}

// Timing reports how long the rest of the chain took in the Server-Timing header.
func Timing[E bworker.Environment](name string) bworker.Middleware[E] {
	return func(c *bworker.Context[E], next bworker.Next) (*bworker.Response, error) {
		start := time.Now()

		resp, err := next()
		if err != nil {
			return nil, err
		}

		took := time.Since(start)
		c.Log.Debug("timed", zap.String("name", name), zap.Duration("took", took))
		resp.Header.Add("Server-Timing", name+";dur="+formatMillis(took))

		return resp, nil
	}
}

func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 3, 64)
}
