package bwapp

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/advdv/bworker"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LambdaMaxResponsePayloadBytes is Lambda's 6 MiB limit minus 1 KiB for the envelope.
const LambdaMaxResponsePayloadBytes = 6*1024*1024 - 1024

// ServerConfig holds optional configuration for the HTTP server.
type ServerConfig struct {
	HealthHandler http.HandlerFunc
}

// ServerParams holds the dependencies for creating an HTTP server.
type ServerParams[E Environment] struct {
	fx.In

	Env        E
	Router     *bworker.Router[E]
	Metrics    *Metrics
	Logger     *zap.Logger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
}

// NewServer builds the router and serves it next to the readiness check and the metrics
// endpoint. Both are left out of tracing to avoid orphan traces from adapter probes.
func NewServer[E Environment](params ServerParams[E], cfg ServerConfig) *http.Server {
	healthPath, metricsPath := params.Env.readinessCheckPath(), params.Env.metricsPath()

	health := cfg.HealthHandler
	if health == nil {
		health = defaultHealthHandler
	}

	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, health)

	if metricsPath != "" {
		mux.Handle(metricsPath, params.Metrics.Handler())
	}

	mux.Handle("/", params.Router.Build())

	handler := withTracing(params.TracerProv, params.Propagator, params.Env.serviceName(),
		healthPath, metricsPath)(mux)

	tc := TimeoutConfig{LambdaTimeout: params.Env.lambdaTimeout()}
	readHeaderTimeout, readTimeout, writeTimeout, idleTimeout := tc.ServerTimeouts()

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", params.Env.port()),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          zap.NewStdLog(params.Logger.Named("http")),
	}
}

// limitResponseSize fails responses the adapter could not return.
func limitResponseSize[E bworker.Environment](limit int) bworker.Middleware[E] {
	return func(c *bworker.Context[E], next bworker.Next) (*bworker.Response, error) {
		resp, err := next()
		if err != nil {
			return nil, err
		}

		if resp != nil && len(resp.Body) > limit {
			c.Log.Error("response exceeds the payload limit",
				zap.Int("size", len(resp.Body)), zap.Int("limit", limit))

			return nil, bworker.Errorf(bworker.CodeInternalServerError, "Internal Server Error")
		}

		return resp, nil
	}
}

// startServerHook listens on start, so a taken port fails the app, and shuts the server
// down gracefully on stop.
func startServerHook(lc fx.Lifecycle, server *http.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", server.Addr)
			if err != nil {
				return errors.Wrapf(err, "listen on %s", server.Addr)
			}

			logger.Info("starting server", zap.String("addr", server.Addr))

			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
