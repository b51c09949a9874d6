package bwapptest

import (
	"strconv"
	"testing"
)

// Env sets [bwapp.BaseEnvironment] variables via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets all [bwapp.BaseEnvironment] variables to test defaults. Each test needs its
// own port.
//
// Defaults:
//   - BW_SERVICE_NAME: "test"
//   - AWS_LWA_READINESS_CHECK_PATH: "/health"
//   - AWS_REGION: "us-east-1"
//   - BW_LAMBDA_TIMEOUT: "30s"
//   - BW_OTEL_EXPORTER: "none"
//   - BW_LOG_LEVEL: "info"
//   - BW_METRICS_PATH: "/metrics"
//   - AWS_LWA_ERROR_STATUS_CODES: "500-599"
//   - AWS_ACCESS_KEY_ID: "test"
//   - AWS_SECRET_ACCESS_KEY: "test"
//
// Use the returned [Env] to override individual values:
//
//	bwapptest.SetBaseEnv(t, 18085).AWSRegion("eu-west-1").LogLevel("debug")
func SetBaseEnv(t testing.TB, port int) *Env {
	t.Helper()
	t.Setenv("AWS_LWA_PORT", strconv.Itoa(port))
	t.Setenv("BW_SERVICE_NAME", "test")
	t.Setenv("AWS_LWA_READINESS_CHECK_PATH", "/health")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("BW_LAMBDA_TIMEOUT", "30s")
	t.Setenv("BW_OTEL_EXPORTER", "none")
	t.Setenv("BW_LOG_LEVEL", "info")
	t.Setenv("BW_METRICS_PATH", "/metrics")
	t.Setenv("AWS_LWA_ERROR_STATUS_CODES", "500-599")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	return &Env{t: t}
}

func (e *Env) set(key, value string) *Env {
	e.t.Helper()
	e.t.Setenv(key, value)

	return e
}

// ServiceName overrides BW_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env { return e.set("BW_SERVICE_NAME", name) }

// ReadinessCheckPath overrides AWS_LWA_READINESS_CHECK_PATH.
func (e *Env) ReadinessCheckPath(path string) *Env {
	return e.set("AWS_LWA_READINESS_CHECK_PATH", path)
}

// AWSRegion overrides AWS_REGION.
func (e *Env) AWSRegion(region string) *Env { return e.set("AWS_REGION", region) }

// LambdaTimeout overrides BW_LAMBDA_TIMEOUT.
func (e *Env) LambdaTimeout(d string) *Env { return e.set("BW_LAMBDA_TIMEOUT", d) }

// LogLevel overrides BW_LOG_LEVEL.
func (e *Env) LogLevel(lvl string) *Env { return e.set("BW_LOG_LEVEL", lvl) }

// MetricsPath overrides BW_METRICS_PATH.
func (e *Env) MetricsPath(path string) *Env { return e.set("BW_METRICS_PATH", path) }

// ErrorStatusCodes overrides AWS_LWA_ERROR_STATUS_CODES.
func (e *Env) ErrorStatusCodes(expr string) *Env {
	return e.set("AWS_LWA_ERROR_STATUS_CODES", expr)
}

// SecretCacheTTL overrides BW_SECRET_CACHE_TTL.
func (e *Env) SecretCacheTTL(d string) *Env { return e.set("BW_SECRET_CACHE_TTL", d) }
