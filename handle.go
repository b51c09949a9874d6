package bworker

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Handler serves a route. Every method maps to one HTTP method, embed [BaseHandler] to only
// implement the ones the route supports. Handlers are created once and shared by all requests to
// the route, so per-request data must flow through the context.
type Handler[E Environment] interface {
	Get(c *Context[E]) (any, error)
	Post(c *Context[E]) (any, error)
	Put(c *Context[E]) (any, error)
	Delete(c *Context[E]) (any, error)
	Patch(c *Context[E]) (any, error)
}

// BaseHandler answers every method with 405 Method Not Allowed.
type BaseHandler[E Environment] struct{}

func (BaseHandler[E]) Get(*Context[E]) (any, error)    { return nil, errMethodNotAllowed() }
func (BaseHandler[E]) Post(*Context[E]) (any, error)   { return nil, errMethodNotAllowed() }
func (BaseHandler[E]) Put(*Context[E]) (any, error)    { return nil, errMethodNotAllowed() }
func (BaseHandler[E]) Delete(*Context[E]) (any, error) { return nil, errMethodNotAllowed() }
func (BaseHandler[E]) Patch(*Context[E]) (any, error)  { return nil, errMethodNotAllowed() }

func errMethodNotAllowed() *Error {
	return Errorf(CodeMethodNotAllowed, "Method Not Allowed")
}

// HandlerDeps are the long-lived collaborators a handler may hold on to.
type HandlerDeps struct {
	Logger *zap.Logger
	State  *ObjectState
}

// HandlerFactory creates the handler of a route. It is called once, at registration.
type HandlerFactory[E Environment] func(deps HandlerDeps) Handler[E]

// HandlerFunc adapts a function to a handler that serves GET requests only.
type HandlerFunc[E Environment] func(c *Context[E]) (any, error)

// Handler returns the function as a [Handler].
func (f HandlerFunc[E]) Handler() Handler[E] { return getOnly[E]{fn: f} }

type getOnly[E Environment] struct {
	BaseHandler[E]
	fn HandlerFunc[E]
}

func (h getOnly[E]) Get(c *Context[E]) (any, error) { return h.fn(c) }

// invoke dispatches to the handler method for the request's method.
func invoke[E Environment](c *Context[E], h Handler[E]) (any, error) {
	switch c.Request.Method {
	case http.MethodGet:
		return h.Get(c)
	case http.MethodPost:
		return h.Post(c)
	case http.MethodPut:
		return h.Put(c)
	case http.MethodDelete:
		return h.Delete(c)
	case http.MethodPatch:
		return h.Patch(c)
	default:
		return nil, errMethodNotAllowed()
	}
}

// terminal is the last step of every chain: it invokes the handler and serializes the result.
func (rtr *Router[E]) terminal(h Handler[E]) Middleware[E] {
	return func(c *Context[E], _ Next) (*Response, error) {
		out, err := invoke(c, h)
		if err != nil {
			return nil, err
		}

		if resp, ok := out.(*Response); ok {
			if resp != nil && rtr.rawCORS {
				if resp.Header == nil {
					resp.Header = http.Header{}
				}

				mergeAbsent(resp.Header, rtr.corsHeaders(c, h))
			}

			return resp, nil
		}

		body, err := json.Marshal(out)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode handler result")
		}

		hdr := c.Response.Header.Clone()
		if hdr == nil {
			hdr = http.Header{}
		}

		mergeAbsent(hdr, http.Header{"Content-Type": {"application/json"}})
		mergeAbsent(hdr, rtr.corsHeaders(c, h))

		return &Response{
			Status:     c.Response.Status,
			StatusText: c.Response.StatusText,
			Header:     hdr,
			Body:       body,
		}, nil
	}
}

// preflight answers OPTIONS without running middleware or the handler.
func (rtr *Router[E]) preflight(c *Context[E], h any) *Response {
	resp := NewResponse(http.StatusNoContent, nil)
	resp.Header = rtr.corsHeaders(c, h)

	return resp
}

// errorResponse turns any error into a JSON error response.
func (rtr *Router[E]) errorResponse(c *Context[E], h any, err error) *Response {
	cl := classify(err, c.Log)

	body, merr := json.Marshal(cl.body)
	if merr != nil {
		c.Log.Error("failed to encode error body", zap.Error(merr))

		cl = classified{status: http.StatusInternalServerError}
		body = []byte(`{"error":"Internal Server Error"}`)
	}

	hdr := cl.header
	if hdr == nil {
		hdr = http.Header{}
	}

	mergeAbsent(hdr, http.Header{"Content-Type": {"application/json"}})
	mergeAbsent(hdr, rtr.corsHeaders(c, h))

	return &Response{
		Status:     cl.status,
		StatusText: http.StatusText(cl.status),
		Header:     hdr,
		Body:       body,
	}
}

// notFound is the catch-all response for unmatched paths.
func (rtr *Router[E]) notFound(c *Context[E]) *Response {
	resp := NewResponse(http.StatusNotFound, []byte(`{"error":"Not found"}`))
	resp.Header.Set("Content-Type", "application/json")
	mergeAbsent(resp.Header, rtr.corsHeaders(c, nil))

	return resp
}

func (rtr *Router[E]) corsHeaders(c *Context[E], h any) http.Header {
	return buildCORSHeaders(effectiveCORS(rtr.cors, h), c.Request, c.Env, c.Data, c.Log)
}
