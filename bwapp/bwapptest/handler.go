package bwapptest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/advdv/bworker"
	"github.com/advdv/bworker/bwapp"
)

// CallRouter serves the request with the router and returns the recorded response.
func CallRouter[E bworker.Environment](rtr *bworker.Router[E], req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	rtr.ServeHTTP(rec, req)

	return rec
}

// WithLambdaContext sets the lambda context header as the adapter would, with the invocation
// deadline the given duration from now.
func WithLambdaContext(req *http.Request, requestID string, remaining time.Duration) *http.Request {
	data, err := json.Marshal(bwapp.LWAContext{
		RequestID: requestID,
		Deadline:  time.Now().Add(remaining).UnixMilli(),
	})
	if err != nil {
		panic("bwapptest: marshal lambda context: " + err.Error())
	}

	req.Header.Set(bwapp.LambdaContextHeader, string(data))

	return req
}
