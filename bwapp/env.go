package bwapp

import (
	"time"

	"github.com/advdv/bworker"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	bworker.Environment

	port() int
	serviceName() string
	readinessCheckPath() string
	level() (zapcore.Level, error)
	otelExporter() string
	awsRegion() string
	lambdaTimeout() time.Duration
	errorStatusCodes() string
	gatewayAccessLogGroup() string
	metricsPath() string
	secretCacheTTL() time.Duration
}

// BaseEnvironment contains the required environment variables for a Lambda Web Adapter app.
// The embedded bworker.BaseEnvironment reads BW_LOG_LEVEL, which sets the level of the app
// logger as well as the level of every request's logger.
type BaseEnvironment struct {
	bworker.BaseEnvironment

	Port               int    `env:"AWS_LWA_PORT,required"`
	ServiceName        string `env:"BW_SERVICE_NAME,required"`
	ReadinessCheckPath string `env:"AWS_LWA_READINESS_CHECK_PATH,required"`
	OtelExporter       string `env:"BW_OTEL_EXPORTER" envDefault:"stdout"`
	AWSRegion          string `env:"AWS_REGION,required"`

	// LambdaTimeout is the function timeout as configured in the infrastructure. The server
	// timeouts are derived from it.
	LambdaTimeout time.Duration `env:"BW_LAMBDA_TIMEOUT" envDefault:"30s"`

	// ErrorStatusCodes mirrors the adapter's setting that turns responses into invocation
	// errors, e.g. "500-599". When set it must cover 500 and 504.
	ErrorStatusCodes string `env:"AWS_LWA_ERROR_STATUS_CODES"`

	// GatewayAccessLogGroup is the API Gateway access log group, linked to traces for log
	// correlation.
	GatewayAccessLogGroup string `env:"BW_GATEWAY_ACCESS_LOG_GROUP"`

	// MetricsPath serves the Prometheus metrics. Empty disables the endpoint.
	MetricsPath string `env:"BW_METRICS_PATH"`

	// SecretCacheTTL is how long secrets are served from the cache before they are read again.
	SecretCacheTTL time.Duration `env:"BW_SECRET_CACHE_TTL" envDefault:"1h"`
}

func (e BaseEnvironment) port() int                     { return e.Port }
func (e BaseEnvironment) serviceName() string           { return e.ServiceName }
func (e BaseEnvironment) readinessCheckPath() string    { return e.ReadinessCheckPath }
func (e BaseEnvironment) otelExporter() string          { return e.OtelExporter }
func (e BaseEnvironment) awsRegion() string             { return e.AWSRegion }
func (e BaseEnvironment) lambdaTimeout() time.Duration  { return e.LambdaTimeout }
func (e BaseEnvironment) errorStatusCodes() string      { return e.ErrorStatusCodes }
func (e BaseEnvironment) gatewayAccessLogGroup() string { return e.GatewayAccessLogGroup }
func (e BaseEnvironment) metricsPath() string           { return e.MetricsPath }
func (e BaseEnvironment) secretCacheTTL() time.Duration { return e.SecretCacheTTL }

func (e BaseEnvironment) level() (zapcore.Level, error) {
	if e.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}

	return bworker.ParseLevel(e.LogLevel)
}

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the environment type E and validates the
// combination of settings.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (E, error) {
		var e E
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}

		if _, err := e.level(); err != nil {
			return e, errors.Wrap(err, "invalid BW_LOG_LEVEL")
		}

		if e.secretCacheTTL() < 0 {
			return e, errors.Newf("invalid BW_SECRET_CACHE_TTL: %s is negative", e.secretCacheTTL())
		}

		if err := ValidateErrorStatusCodes(e.errorStatusCodes()); err != nil {
			return e, errors.Wrap(err, "invalid AWS_LWA_ERROR_STATUS_CODES")
		}

		return e, nil
	}
}
