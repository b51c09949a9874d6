package bwapp

import (
	"net/http"

	intervals "github.com/MawKKe/integer-interval-expressions-go"
	"github.com/cockroachdb/errors"
)

// requiredErrorStatusCodes are produced by the app itself: unhandled errors and requests that
// ran into the invocation deadline.
var requiredErrorStatusCodes = []int{http.StatusInternalServerError, http.StatusGatewayTimeout}

// ValidateErrorStatusCodes checks the adapter's error status code expression, e.g. "500-599" or
// "500,502-504". An empty expression disables the feature and is valid.
func ValidateErrorStatusCodes(expr string) error {
	if expr == "" {
		return nil
	}

	parsed, err := intervals.ParseExpression(expr)
	if err != nil {
		return errors.Wrapf(err, "parse %q", expr)
	}

	for _, code := range requiredErrorStatusCodes {
		if !parsed.Matches(code) {
			return errors.Newf("expression %q does not include status %d", expr, code)
		}
	}

	return nil
}
