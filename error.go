package bworker

import (
	"fmt"
	"maps"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Code is an error code that mirrors the http status codes. It can be used to create errors to pass around across
// middleware layers to handle errors structurally.
type Code int

const (
	CodeUnknown                      Code = 0
	CodeBadRequest                   Code = http.StatusBadRequest                   // RFC 9110, 15.5.1
	CodeUnauthorized                 Code = http.StatusUnauthorized                 // RFC 9110, 15.5.2
	CodePaymentRequired              Code = http.StatusPaymentRequired              // RFC 9110, 15.5.3
	CodeForbidden                    Code = http.StatusForbidden                    // RFC 9110, 15.5.4
	CodeNotFound                     Code = http.StatusNotFound                     // RFC 9110, 15.5.5
	CodeMethodNotAllowed             Code = http.StatusMethodNotAllowed             // RFC 9110, 15.5.6
	CodeNotAcceptable                Code = http.StatusNotAcceptable                // RFC 9110, 15.5.7
	CodeProxyAuthRequired            Code = http.StatusProxyAuthRequired            // RFC 9110, 15.5.8
	CodeRequestTimeout               Code = http.StatusRequestTimeout               // RFC 9110, 15.5.9
	CodeConflict                     Code = http.StatusConflict                     // RFC 9110, 15.5.10
	CodeGone                         Code = http.StatusGone                         // RFC 9110, 15.5.11
	CodeLengthRequired               Code = http.StatusLengthRequired               // RFC 9110, 15.5.12
	CodePreconditionFailed           Code = http.StatusPreconditionFailed           // RFC 9110, 15.5.13
	CodeRequestEntityTooLarge        Code = http.StatusRequestEntityTooLarge        // RFC 9110, 15.5.14
	CodeRequestURITooLong            Code = http.StatusRequestURITooLong            // RFC 9110, 15.5.15
	CodeUnsupportedMediaType         Code = http.StatusUnsupportedMediaType         // RFC 9110, 15.5.16
	CodeRequestedRangeNotSatisfiable Code = http.StatusRequestedRangeNotSatisfiable // RFC 9110, 15.5.17
	CodeExpectationFailed            Code = http.StatusExpectationFailed            // RFC 9110, 15.5.18
	CodeTeapot                       Code = http.StatusTeapot                       // RFC 9110, 15.5.19 (Unused)
	CodeMisdirectedRequest           Code = http.StatusMisdirectedRequest           // RFC 9110, 15.5.20
	CodeUnprocessableEntity          Code = http.StatusUnprocessableEntity          // RFC 9110, 15.5.21
	CodeLocked                       Code = http.StatusLocked                       // RFC 4918, 11.3
	CodeFailedDependency             Code = http.StatusFailedDependency             // RFC 4918, 11.4
	CodeTooEarly                     Code = http.StatusTooEarly                     // RFC 8470, 5.2.
	CodeUpgradeRequired              Code = http.StatusUpgradeRequired              // RFC 9110, 15.5.22
	CodePreconditionRequired         Code = http.StatusPreconditionRequired         // RFC 6585, 3
	CodeTooManyRequests              Code = http.StatusTooManyRequests              // RFC 6585, 4
	CodeRequestHeaderFieldsTooLarge  Code = http.StatusRequestHeaderFieldsTooLarge  // RFC 6585, 5
	CodeUnavailableForLegalReasons   Code = http.StatusUnavailableForLegalReasons   // RFC 7725, 3

	CodeInternalServerError           Code = http.StatusInternalServerError           // RFC 9110, 15.6.1
	CodeNotImplemented                Code = http.StatusNotImplemented                // RFC 9110, 15.6.2
	CodeBadGateway                    Code = http.StatusBadGateway                    // RFC 9110, 15.6.3
	CodeServiceUnavailable            Code = http.StatusServiceUnavailable            // RFC 9110, 15.6.4
	CodeGatewayTimeout                Code = http.StatusGatewayTimeout                // RFC 9110, 15.6.5
	CodeHTTPVersionNotSupported       Code = http.StatusHTTPVersionNotSupported       // RFC 9110, 15.6.6
	CodeVariantAlsoNegotiates         Code = http.StatusVariantAlsoNegotiates         // RFC 2295, 8.1
	CodeInsufficientStorage           Code = http.StatusInsufficientStorage           // RFC 4918, 11.5
	CodeLoopDetected                  Code = http.StatusLoopDetected                  // RFC 5842, 7.2
	CodeNotExtended                   Code = http.StatusNotExtended                   // RFC 2774, 7
	CodeNetworkAuthenticationRequired Code = http.StatusNetworkAuthenticationRequired // RFC 6585, 6
)

// ErrChainExhausted is returned by next() when a middleware continues the chain after the
// terminal handler step has already been consumed. It signals a bug in a middleware.
var ErrChainExhausted = errors.New("middleware chain exhausted")

// errNoResponse is reported when a step returns neither a response nor an error.
var errNoResponse = errors.New("middleware returned neither a response nor an error")

// Error describes an http error whose message, details and headers are safe to show to clients.
type Error struct {
	code    Code
	err     error
	details map[string]any
	header  http.Header
}

// NewError inits a new error given the error code. The underlying error's message is used as the
// public message of the response body.
func NewError(c Code, underlying error) *Error {
	return &Error{code: c, err: underlying}
}

// Errorf inits a new error with a formatted public message.
func Errorf(c Code, format string, args ...any) *Error {
	return NewError(c, errors.Newf(format, args...))
}

// WithDetail adds a field that is spread next to "error" in the response body.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = map[string]any{}
	}

	e.details[key] = value

	return e
}

// WithHeader adds a header that is merged into the error response.
func (e *Error) WithHeader(key, value string) *Error {
	if e.header == nil {
		e.header = http.Header{}
	}

	e.header.Add(key, value)

	return e
}

func (e *Error) Code() Code { return e.code }

// Message returns the public message.
func (e *Error) Message() string {
	if e.err == nil {
		return http.StatusText(int(e.code))
	}

	return e.err.Error()
}

// Details returns a copy of the structured details.
func (e *Error) Details() map[string]any { return maps.Clone(e.details) }

// Header returns a copy of the extra response headers.
func (e *Error) Header() http.Header { return e.header.Clone() }

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Error() string {
	status := http.StatusText(int(e.Code()))
	if status == "" {
		status = "Unknown"
	}

	return fmt.Sprintf("%s: %s", status, e.Message())
}

// CodeOf returns the error's status code if it is or wraps an [*Error] and
// [CodeUnknown] otherwise.
func CodeOf(err error) Code {
	if herr, ok := asError(err); ok {
		return herr.Code()
	}
	return CodeUnknown
}

// asError uses errors.As to unwrap any error and look for an *Error.
func asError(err error) (*Error, bool) {
	var herr *Error
	ok := errors.As(err, &herr)
	return herr, ok
}

func validStatus(code int) bool { return code >= 100 && code <= 999 }

// classified is the client-facing outcome of an error.
type classified struct {
	status int
	body   map[string]any
	header http.Header
}

// classify maps any error to a status, JSON body and headers. Only recognized errors surface
// their message and details, everything else becomes a generic 500.
func classify(err error, logs *zap.Logger) classified {
	switch herr, ok := asError(err); {
	case errors.Is(err, ErrChainExhausted), errors.Is(err, errNoResponse):
		logs.Error("middleware contract violation", zap.Error(err), zap.Bool("bug", true))
	case ok && validStatus(int(herr.Code())):
		logs.Debug("recognized error", zap.Error(err), zap.Int("status", int(herr.Code())))

		body := make(map[string]any, len(herr.details)+1)
		maps.Copy(body, herr.details)
		body["error"] = herr.Message()

		return classified{status: int(herr.Code()), body: body, header: herr.Header()}
	default:
		logs.Error("unhandled error", zap.Error(err), zap.String("detail", fmt.Sprintf("%+v", err)))
	}

	return classified{
		status: http.StatusInternalServerError,
		body:   map[string]any{"error": http.StatusText(http.StatusInternalServerError)},
	}
}
