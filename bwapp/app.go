package bwapp

import (
	"context"
	"net/http"
	"time"

	"github.com/advdv/bworker"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/cockroachdb/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	ServerConfig
	FxOptions []fx.Option

	routerOptions []any
}

// Option configures the App.
type Option func(*AppConfig)

// WithAWSClient registers an AWS SDK client for injection into handler factories. Clients
// target AWS_REGION unless ForRegion is given:
//
//	bwapp.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	    return dynamodb.NewFromConfig(cfg)
//	})
func WithAWSClient[T any](factory func(aws.Config) T, opts ...ClientOption) Option {
	return WithFx(fx.Provide(func(cfg aws.Config) T {
		return factory(clientConfig(cfg, opts...))
	}))
}

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithHealthHandler sets the handler of the readiness check. It defaults to a 200 OK.
func WithHealthHandler(h http.HandlerFunc) Option {
	return func(c *AppConfig) {
		c.HealthHandler = h
	}
}

// WithRouterOptions passes options to the router. The environment type must match the one the
// app is created with.
func WithRouterOptions[E Environment](opts ...bworker.Option[E]) Option {
	return func(c *AppConfig) {
		for _, opt := range opts {
			c.routerOptions = append(c.routerOptions, opt)
		}
	}
}

// WithSSMOrigins reads the router's allowed CORS origins from a StringList parameter. Router
// options given with WithRouterOptions are applied later and may override it.
func WithSSMOrigins(parameter string, ttl time.Duration) Option {
	return WithFx(
		fx.Provide(func(cfg aws.Config) SSMAPI { return ssm.NewFromConfig(cfg) }),
		fx.Provide(func(client SSMAPI, logs *zap.Logger) *SSMOriginList {
			return NewSSMOriginList(client, parameter, ttl, logs)
		}),
	)
}

type routerParams[E Environment] struct {
	fx.In

	Env     E
	Logger  *zap.Logger
	Metrics *Metrics
	Origins *SSMOriginList `optional:"true"`
}

// newRouter returns the provider of the app's router with the app middleware in place.
func newRouter[E Environment](cfg AppConfig) func(p routerParams[E]) (*bworker.Router[E], error) {
	return func(p routerParams[E]) (*bworker.Router[E], error) {
		opts := []bworker.Option[E]{bworker.WithLogger[E](p.Logger)}
		if p.Origins != nil {
			opts = append(opts, bworker.WithCORS(&bworker.CORSConfig[E]{OriginFunc: OriginsFrom[E](p.Origins)}))
		}

		for _, o := range cfg.routerOptions {
			opt, ok := o.(bworker.Option[E])
			if !ok {
				return nil, errors.Newf("bwapp: router option %T does not match environment %T", o, p.Env)
			}

			opts = append(opts, opt)
		}

		rtr := bworker.NewRouter(p.Env, opts...)
		rtr.Use(
			Middleware[E](p.Metrics),
			withLWAContext[E](),
			WithRequestDeadline[E](DefaultDeadlineBuffer),
			withTraceFields[E](),
			limitResponseSize[E](LambdaMaxResponsePayloadBytes),
		)

		return rtr, nil
	}
}

type runtimeParams[E Environment] struct {
	fx.In

	Env          E
	Router       *bworker.Router[E]
	SecretReader SecretReader
	Transport    http.RoundTripper
}

// FxOptions returns the options of the app's DI graph. The routing function is invoked with
// its dependencies after every other option is applied, it should at least accept the
// *bworker.Router[E] to register handlers on.
func FxOptions[E Environment](routing any, opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	fxOpts := make([]fx.Option, 0, 16+len(cfg.FxOptions))
	fxOpts = append(fxOpts,
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(func(e Environment) (*zap.Logger, error) { return NewLogger(e) }),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(provideAWSConfig),
		fx.Provide(provideSecretReader),
		fx.Provide(NewHTTPTransport),
		fx.Provide(NewMetrics),
		fx.Provide(newRouter[E](cfg)),
		fx.Provide(func(p runtimeParams[E]) *Runtime[E] {
			return NewRuntime(p.Env, p.Router, RuntimeParams{SecretReader: p.SecretReader, Transport: p.Transport})
		}),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(NewServer[E]),
	)

	fxOpts = append(fxOpts, cfg.FxOptions...)

	return append(fxOpts,
		fx.Invoke(routing),
		fx.Invoke(startServerHook),
	)
}

// NewApp creates the app.
//
//	bwapp.NewApp[Env](func(r *bworker.Router[Env], h *Handlers) {
//	    r.Handle("/items/:id", h, "get-item")
//	},
//	    bwapp.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	        return dynamodb.NewFromConfig(cfg)
//	    }),
//	    bwapp.WithFx(fx.Provide(NewHandlers)),
//	).Run()
func NewApp[E Environment](routing any, opts ...Option) *App {
	return &App{app: fx.New(FxOptions[E](routing, opts...)...)}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application, blocks until ctx is done and then stops it.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}
