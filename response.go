package bworker

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"golang.org/x/net/http/httpguts"
)

// ResponseContext is the pending response state that middleware and handlers shape before the
// handler's return value is serialized.
type ResponseContext struct {
	Status     int
	StatusText string
	Header     http.Header
}

// NewResponseContext returns a response context with the defaults.
func NewResponseContext() *ResponseContext {
	rc := &ResponseContext{}
	rc.Reset()

	return rc
}

// Reset restores status 200, "OK" and an empty header.
func (rc *ResponseContext) Reset() {
	rc.Status = http.StatusOK
	rc.StatusText = http.StatusText(http.StatusOK)
	rc.Header = http.Header{}
}

// Response is a fully buffered response. Because nothing is written to the client until the
// dispatch is over, any failure can still replace the whole response.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
}

// NewResponse creates a response with the given status and body.
func NewResponse(status int, body []byte) *Response {
	return &Response{
		Status:     status,
		StatusText: http.StatusText(status),
		Header:     http.Header{},
		Body:       body,
	}
}

// NewJSONResponse encodes v as the body of a response with a JSON content type.
func NewJSONResponse(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode json response")
	}

	resp := NewResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")

	return resp, nil
}

// WriteTo writes the response to a standard library response writer. The status text is not
// transmitted since net/http always derives it from the status code.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	if err := r.validate(); err != nil {
		return err
	}

	for k, vs := range r.Header {
		w.Header()[k] = append(w.Header()[k], vs...)
	}

	w.WriteHeader(r.Status)
	if len(r.Body) == 0 {
		return nil
	}

	if _, err := w.Write(r.Body); err != nil {
		return errors.Wrap(err, "failed to write response body")
	}

	return nil
}

func (r *Response) validate() error {
	if !validStatus(r.Status) {
		return errors.Newf("invalid status code: %d", r.Status)
	}

	for k, vs := range r.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return errors.Newf("invalid header field name: %q", k)
		}

		for _, v := range vs {
			if !httpguts.ValidHeaderFieldValue(v) {
				return errors.Newf("invalid value for header %q", k)
			}
		}
	}

	return nil
}

// mergeAbsent adds headers from src that are not present in dst. Vary is token-merged so an
// origin-dependent response is never cached as origin-independent.
func mergeAbsent(dst, src http.Header) {
	for k, vs := range src {
		if k == "Vary" {
			addVary(dst, vs...)
			continue
		}

		if _, exists := dst[k]; exists {
			continue
		}

		dst[k] = append([]string(nil), vs...)
	}
}

func addVary(h http.Header, tokens ...string) {
	existing := lo.FlatMap(h.Values("Vary"), func(v string, _ int) []string {
		return lo.Map(strings.Split(v, ","), func(s string, _ int) string {
			return strings.ToLower(strings.TrimSpace(s))
		})
	})

	for _, tok := range tokens {
		if lo.Contains(existing, strings.ToLower(tok)) || lo.Contains(existing, "*") {
			continue
		}

		h.Add("Vary", tok)
		existing = append(existing, strings.ToLower(tok))
	}
}

// responseBuffer captures a response in memory. The router delivers responses to it directly so
// [Router.Fetch] hands back the exact value the pipeline produced.
type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
	resp   *Response
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: http.Header{}}
}

func (b *responseBuffer) Header() http.Header { return b.header }

func (b *responseBuffer) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}

	return b.body.Write(p)
}

func (b *responseBuffer) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

// Response returns the delivered response, or builds one from what was written.
func (b *responseBuffer) Response() *Response {
	if b.resp != nil {
		return b.resp
	}

	status := lo.Ternary(b.status == 0, http.StatusOK, b.status)

	return &Response{
		Status:     status,
		StatusText: http.StatusText(status),
		Header:     b.header,
		Body:       b.body.Bytes(),
	}
}

// deliver hands the response to the writer.
func deliver(w http.ResponseWriter, resp *Response) error {
	if buf, ok := w.(*responseBuffer); ok {
		buf.resp = resp
		return nil
	}

	return resp.WriteTo(w)
}
