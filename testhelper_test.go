package bworker_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdv/bworker"
)

type testEnv struct {
	bworker.BaseEnvironment
	Greeting string
}

// fetch serves a request through the router's http.Handler and returns what was written.
func fetch(
	t *testing.T, rtr http.Handler, method, target string, hdr http.Header,
) *bworker.Response {
	t.Helper()

	rec, req := httptest.NewRecorder(), httptest.NewRequest(method, target, nil)
	for k, vs := range hdr {
		req.Header[k] = vs
	}

	rtr.ServeHTTP(rec, req)

	return &bworker.Response{
		Status:     rec.Code,
		StatusText: http.StatusText(rec.Code),
		Header:     rec.Header(),
		Body:       rec.Body.Bytes(),
	}
}

func origin(o string) http.Header { return http.Header{"Origin": {o}} }
