// Package bworker routes HTTP requests for edge functions and their durable objects.
//
// # Overview
//
// A [Router] maps requests to handlers by path and method, runs them through an ordered
// middleware chain, and turns whatever the handler returns (or fails with) into a JSON response
// with consistent CORS headers. Nothing is written to the client until the chain is done, so
// any failure can replace the whole response.
//
// A minimal example:
//
//	type Env struct{ bworker.BaseEnvironment }
//
//	type userHandler struct{ bworker.BaseHandler[Env] }
//
//	func (userHandler) Get(c *bworker.Context[Env]) (any, error) {
//	    return map[string]string{"userId": c.Params.Get("id")}, nil
//	}
//
//	rtr := bworker.NewRouter(Env{})
//	rtr.Handle("/users/:id", userHandler{}, "get-user")
//	http.ListenAndServe(":8080", rtr)
//
// # Handlers
//
// A [Handler] has one method per HTTP method: Get, Post, Put, Delete and Patch. Handlers embed
// [BaseHandler], which answers every method with 405 Method Not Allowed, and override the ones
// the route supports. A handler is created once per route and shared by all requests, so it
// should only hold long-lived collaborators. Use [Router.HandleFactory] to receive them through
// [HandlerDeps].
//
// The handler's return value is encoded as JSON. The status and headers come from the request's
// [ResponseContext], which starts out as 200 OK with no headers. Returning a [*Response] sends it
// as is, see [WithRawResponseCORS].
//
// # Middleware
//
// [Middleware] run in registration order. Global middleware are added with [Router.Use],
// path and method specific ones with [Router.UseAt] and [Router.UseMethod]:
//
//	rtr.Use(func(c *bworker.Context[Env], next bworker.Next) (*bworker.Response, error) {
//	    start := time.Now()
//	    resp, err := next()
//	    c.Log.Info("served", zap.Duration("took", time.Since(start)))
//	    return resp, err
//	})
//
// A middleware that returns without calling next short-circuits the chain. Calling next after
// the handler has run fails with [ErrChainExhausted]. Once any middleware or the handler returns
// an error or panics, the request is answered with the error response.
//
// # Error Handling
//
// Errors created with [NewError] or [Errorf] carry a status code, a public message, optional
// details and headers:
//
//	return nil, bworker.Errorf(bworker.CodeForbidden, "Forbidden").WithDetail("reason", "banned")
//
// which results in a 403 with the body {"error":"Forbidden","reason":"banned"}. Any other error
// is logged and answered with a 500 that does not reveal the error.
//
// # CORS
//
// [WithCORS] sets the router's [CORSConfig]. Handlers that implement [CORSDecider] decide the
// allowed origin themselves. The same headers are used for OPTIONS preflight requests (answered
// with a 204 without running middleware) and for the actual responses, errors included. CORS
// headers never overwrite headers that are already present.
//
// # Durable Objects
//
// An [ObjectRouter] serves the requests of a single durable object. Its handlers and request
// contexts have access to the object's [ObjectState]. A [Namespace] creates object routers on
// demand by id.
package bworker
