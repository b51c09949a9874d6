// Package bwapp runs a bworker router as an HTTP service behind the AWS Lambda Web Adapter.
//
// # Overview
//
// bwapp wires environment parsing, structured logging, OpenTelemetry tracing, Prometheus
// metrics, AWS SDK clients and graceful shutdown around a [bworker.Router]:
//
//	bwapp.NewApp[Env](func(r *bworker.Router[Env], h *Handlers) {
//	    r.Handle("/items/:id", h, "get-item")
//	},
//	    bwapp.WithAWSClient(func(cfg aws.Config) *bwstore.DynamoDB {
//	        return bwstore.NewDynamoDB(dynamodb.NewFromConfig(cfg), "objects")
//	    }),
//	    bwapp.WithFx(fx.Provide(NewHandlers)),
//	).Run()
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    bwapp.BaseEnvironment
//	    MainTableName string `env:"MAIN_TABLE_NAME,required"`
//	}
//
// BaseEnvironment reads the following variables:
//
//	| Variable                     | Required | Default | Description                                       |
//	|------------------------------|----------|---------|---------------------------------------------------|
//	| AWS_LWA_PORT                 | Yes      | -       | Port the HTTP server listens on                   |
//	| AWS_LWA_READINESS_CHECK_PATH | Yes      | -       | Readiness check path probed by the adapter        |
//	| AWS_REGION                   | Yes      | -       | AWS region, set by the Lambda runtime             |
//	| BW_SERVICE_NAME              | Yes      | -       | Service name for logging and tracing              |
//	| BW_LAMBDA_TIMEOUT            | No       | 30s     | Function timeout the server timeouts derive from  |
//	| BW_LOG_LEVEL                 | No       | info    | trace, debug, info, warn, error or fatal          |
//	| BW_OTEL_EXPORTER             | No       | stdout  | Trace exporter: stdout, xrayudp or none           |
//	| BW_GATEWAY_ACCESS_LOG_GROUP  | No       | -       | API Gateway access log group for X-Ray            |
//	| BW_METRICS_PATH              | No       | -       | Path of the Prometheus endpoint                   |
//	| BW_SECRET_CACHE_TTL          | No       | 1h      | How long secrets are served from the cache        |
//	| AWS_LWA_ERROR_STATUS_CODES   | No       | -       | Must include 500 and 504 when set                 |
//
// BW_LOG_LEVEL sets the level of the app logger and, through the router, of every request's
// logger.
//
// # Request Pipeline
//
// Every routed request passes the app middleware before any registered with the router:
//
//  1. Request metrics, labelled with the matched route pattern
//  2. The lambda context from the x-amzn-lambda-context header, see [LWA]
//  3. The invocation deadline minus [DefaultDeadlineBuffer] as the request deadline
//  4. Trace and span id on the request logger
//  5. A check that the body fits a Lambda response
//
// The readiness check and the metrics endpoint are served outside the router and are not
// traced.
//
// # Runtime
//
// [Runtime] gives handler factories access to the environment, route reversal, secrets and
// traced outbound HTTP:
//
//	func NewHandlers(rt *bwapp.Runtime[Env], store *bwstore.DynamoDB) *Handlers {
//	    return &Handlers{rt: rt, store: store}
//	}
//
// # CORS Origins from SSM
//
// [WithSSMOrigins] reads the allowed origins from a parameter, so they can change without a
// deploy. The list is cached for the given ttl.
//
// # Testing
//
// The bwapptest package builds the same graph with fxtest.
package bwapp
