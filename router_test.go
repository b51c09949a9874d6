package bworker_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/advdv/bworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type userHandler struct{ bworker.BaseHandler[testEnv] }

func (userHandler) Get(c *bworker.Context[testEnv]) (any, error) {
	return map[string]string{"userId": c.Params.Get("id")}, nil
}

// decidingHandler allows origins that end with the configured suffix.
type decidingHandler struct {
	bworker.BaseHandler[testEnv]
	suffix string
}

func (h decidingHandler) Get(*bworker.Context[testEnv]) (any, error) {
	return map[string]bool{"ok": true}, nil
}

func (h decidingHandler) DecideCORSOrigin(r *http.Request, _ testEnv, _ bworker.Data) (string, bool) {
	o := r.Header.Get("Origin")
	return o, strings.HasSuffix(o, h.suffix)
}

func TestEndToEnd(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	rtr.Handle("/users/:id", userHandler{})

	resp := fetch(t, rtr, http.MethodGet, "/users/42", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.JSONEq(t, `{"userId":"42"}`, string(resp.Body))
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Equal(t, bworker.DefaultCORSMethods, resp.Header.Get("Access-Control-Allow-Methods"))
	require.Equal(t, bworker.DefaultCORSHeaders, resp.Header.Get("Access-Control-Allow-Headers"))
	require.Equal(t, bworker.DefaultCORSMaxAge, resp.Header.Get("Access-Control-Max-Age"))
	require.Empty(t, resp.Header.Values("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	rtr.Handle("/users/:id", userHandler{})

	for _, target := range []string{"/nope", "/users", "/users/42/posts"} {
		resp := fetch(t, rtr, http.MethodGet, target, nil)
		require.Equal(t, http.StatusNotFound, resp.Status, target)
		require.JSONEq(t, `{"error":"Not found"}`, string(resp.Body))
		require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	rtr.Handle("/users/:id", userHandler{})

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, "PURGE"} {
		resp := fetch(t, rtr, method, "/users/42", nil)
		require.Equal(t, http.StatusMethodNotAllowed, resp.Status, method)
		require.JSONEq(t, `{"error":"Method Not Allowed"}`, string(resp.Body))
	}
}

func TestPathParams(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	echo := func(c *bworker.Context[testEnv]) (any, error) { return c.Params, nil }

	rtr.HandleFunc("/orgs/:org/repos/:repo", echo)
	rtr.HandleFunc("/files/*path", echo)
	rtr.HandleFunc("/static/*", echo)

	for target, exp := range map[string]string{
		"/orgs/acme/repos/rocket": `{"org":"acme","repo":"rocket"}`,
		"/files/a/b/c.txt":        `{"path":"a/b/c.txt"}`,
		"/static/css/main.css":    `{"*":"css/main.css"}`,
	} {
		resp := fetch(t, rtr, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, resp.Status, target)
		require.JSONEq(t, exp, string(resp.Body), target)
	}
}

func TestWildcardOrigin(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{}, bworker.WithCORS(&bworker.CORSConfig[testEnv]{Origins: []string{"*"}}))
	rtr.Handle("/users/:id", userHandler{})

	for _, hdr := range []http.Header{nil, origin("https://a.example")} {
		resp := fetch(t, rtr, http.MethodGet, "/users/1", hdr)
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		require.Empty(t, resp.Header.Values("Vary"))
	}
}

func TestOriginList(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{}, bworker.WithCORS(&bworker.CORSConfig[testEnv]{
		Origins:       []string{"https://a.example", "https://b.example"},
		ExposeHeaders: "X-Request-Id",
	}))
	rtr.Handle("/users/:id", userHandler{})

	t.Run("listed", func(t *testing.T) {
		resp := fetch(t, rtr, http.MethodGet, "/users/1", origin("https://b.example"))
		assert.Equal(t, "https://b.example", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, []string{"Origin"}, resp.Header.Values("Vary"))
		assert.Equal(t, "X-Request-Id", resp.Header.Get("Access-Control-Expose-Headers"))
	})

	t.Run("not listed", func(t *testing.T) {
		resp := fetch(t, rtr, http.MethodGet, "/users/1", origin("https://evil.example"))
		assert.Empty(t, resp.Header.Values("Access-Control-Allow-Origin"))
		assert.Empty(t, resp.Header.Values("Vary"))
	})

	t.Run("no origin", func(t *testing.T) {
		resp := fetch(t, rtr, http.MethodGet, "/users/1", nil)
		assert.Empty(t, resp.Header.Values("Access-Control-Allow-Origin"))
	})

	t.Run("error responses", func(t *testing.T) {
		resp := fetch(t, rtr, http.MethodPost, "/users/1", origin("https://a.example"))
		assert.Equal(t, http.StatusMethodNotAllowed, resp.Status)
		assert.Equal(t, "https://a.example", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, []string{"Origin"}, resp.Header.Values("Vary"))
	})

	t.Run("not found", func(t *testing.T) {
		resp := fetch(t, rtr, http.MethodGet, "/nope", origin("https://a.example"))
		assert.Equal(t, http.StatusNotFound, resp.Status)
		assert.Equal(t, "https://a.example", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestCredentials(t *testing.T) {
	for _, tt := range []struct {
		name    string
		origins []string
		origin  string
		expCred bool
	}{
		{name: "no origins configured", origins: nil, origin: "https://a.example"},
		{name: "origin not listed", origins: []string{"https://a.example"}, origin: "https://b.example"},
		{name: "no origin header", origins: []string{"https://a.example"}},
		{name: "wildcard", origins: []string{"*"}, origin: "https://a.example"},
		{name: "listed", origins: []string{"https://a.example"}, origin: "https://a.example", expCred: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rtr := bworker.NewRouter(testEnv{}, bworker.WithCORS(&bworker.CORSConfig[testEnv]{
				Origins:     tt.origins,
				Credentials: true,
			}))
			rtr.Handle("/users/:id", userHandler{})

			var hdr http.Header
			if tt.origin != "" {
				hdr = origin(tt.origin)
			}

			for _, method := range []string{http.MethodGet, http.MethodOptions} {
				resp := fetch(t, rtr, method, "/users/1", hdr)
				if !tt.expCred {
					assert.Empty(t, resp.Header.Values("Access-Control-Allow-Credentials"), method)
					continue
				}

				assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"), method)
				assert.NotEqual(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), method)
			}
		})
	}
}

func corsHeaders(h http.Header) http.Header {
	out := http.Header{}
	for k, vs := range h {
		if strings.HasPrefix(k, "Access-Control-") || k == "Vary" {
			out[k] = vs
		}
	}

	return out
}

func TestPreflightParity(t *testing.T) {
	routerCfg := &bworker.CORSConfig[testEnv]{
		Origins: []string{"https://a.example"},
		Methods: "GET, OPTIONS",
		Headers: "X-Custom",
		MaxAge:  "60",
	}

	for _, tt := range []struct {
		name      string
		cfg       *bworker.CORSConfig[testEnv]
		handler   bworker.Handler[testEnv]
		origin    string
		expOrigin string
	}{
		{name: "default", handler: userHandler{}, origin: "https://a.example"},
		{name: "router static", cfg: routerCfg, handler: userHandler{}, origin: "https://a.example", expOrigin: "https://a.example"},
		{name: "router static unlisted", cfg: routerCfg, handler: userHandler{}, origin: "https://z.example"},
		{name: "handler decides", cfg: routerCfg, handler: decidingHandler{suffix: ".test"}, origin: "https://x.test", expOrigin: "https://x.test"},
		{name: "handler rejects listed", cfg: routerCfg, handler: decidingHandler{suffix: ".test"}, origin: "https://a.example"},
		{name: "handler without router config", handler: decidingHandler{suffix: ".test"}, origin: "https://y.test", expOrigin: "https://y.test"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rtr := bworker.NewRouter(testEnv{}, bworker.WithCORS(tt.cfg))
			rtr.Handle("/users/:id", tt.handler)

			pre := fetch(t, rtr, http.MethodOptions, "/users/1", origin(tt.origin))
			act := fetch(t, rtr, http.MethodGet, "/users/1", origin(tt.origin))

			require.Equal(t, http.StatusNoContent, pre.Status)
			require.Empty(t, pre.Body)
			require.Equal(t, http.StatusOK, act.Status)

			require.Equal(t, corsHeaders(act.Header), corsHeaders(pre.Header))
			require.Equal(t, tt.expOrigin, pre.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

type panickingDecider struct{ bworker.BaseHandler[testEnv] }

func (panickingDecider) Get(*bworker.Context[testEnv]) (any, error) { return "ok", nil }

func (panickingDecider) DecideCORSOrigin(*http.Request, testEnv, bworker.Data) (string, bool) {
	panic("decider exploded")
}

func TestOriginDecisionPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	rtr := bworker.NewRouter(testEnv{},
		bworker.WithLogger[testEnv](zap.New(core)),
		bworker.WithCORS(&bworker.CORSConfig[testEnv]{
			OriginFunc: func(*http.Request, testEnv, bworker.Data) (string, bool) { panic("router func exploded") },
		}))
	rtr.Handle("/p", panickingDecider{})

	for _, tt := range []struct {
		method, target string
		expStatus      int
	}{
		{http.MethodOptions, "/p", http.StatusNoContent},
		{http.MethodGet, "/p", http.StatusOK},
		{http.MethodPost, "/p", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodOptions, "/nope", http.StatusNoContent},
	} {
		req := httptest.NewRequest(tt.method, tt.target, nil)
		req.Header.Set("Origin", "https://a.example")

		var resp *bworker.Response
		require.NotPanics(t, func() { resp = rtr.Fetch(req, testEnv{}) }, "%s %s", tt.method, tt.target)
		assert.Equal(t, tt.expStatus, resp.Status, "%s %s", tt.method, tt.target)
		assert.Empty(t, resp.Header.Values("Access-Control-Allow-Origin"), "%s %s", tt.method, tt.target)
	}

	assert.Positive(t, logs.FilterMessage("cors origin decision panicked").Len())
}

func TestDecidedOriginVaries(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	rtr.Handle("/users/:id", decidingHandler{suffix: ".test"})

	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		resp := fetch(t, rtr, method, "/users/1", origin("https://x.test"))
		assert.Equal(t, "https://x.test", resp.Header.Get("Access-Control-Allow-Origin"), method)
		assert.Equal(t, []string{"Origin"}, resp.Header.Values("Vary"), method)
	}
}

func TestPreflightSkipsMiddleware(t *testing.T) {
	var calls atomic.Int32

	rtr := bworker.NewRouter(testEnv{})
	rtr.Use(func(c *bworker.Context[testEnv], next bworker.Next) (*bworker.Response, error) {
		calls.Add(1)
		return next()
	})
	rtr.Handle("/users/:id", userHandler{})

	resp := fetch(t, rtr, http.MethodOptions, "/users/1", nil)
	require.Equal(t, http.StatusNoContent, resp.Status)
	require.Zero(t, calls.Load())
}

func TestCatchAllPreflight(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{}, bworker.WithCORS(&bworker.CORSConfig[testEnv]{Origins: []string{"*"}}))

	resp := fetch(t, rtr, http.MethodOptions, "/anything/at/all", nil)
	require.Equal(t, http.StatusNoContent, resp.Status)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, bworker.DefaultCORSMethods, resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestResponseContextWins(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{}, bworker.WithCORS(&bworker.CORSConfig[testEnv]{Origins: []string{"*"}}))
	rtr.HandleFunc("/created", func(c *bworker.Context[testEnv]) (any, error) {
		c.Response.Status = http.StatusCreated
		c.Response.StatusText = "Created"
		c.Response.Header.Set("Access-Control-Allow-Origin", "https://mine.example")
		c.Response.Header.Set("Content-Type", "application/vnd.api+json")
		c.Response.Header.Set("X-Extra", "1")

		return map[string]int{"id": 7}, nil
	})

	resp := fetch(t, rtr, http.MethodGet, "/created", nil)
	require.Equal(t, http.StatusCreated, resp.Status)
	require.Equal(t, "https://mine.example", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "application/vnd.api+json", resp.Header.Get("Content-Type"))
	require.Equal(t, "1", resp.Header.Get("X-Extra"))
	require.Equal(t, bworker.DefaultCORSMethods, resp.Header.Get("Access-Control-Allow-Methods"))
	require.JSONEq(t, `{"id":7}`, string(resp.Body))
}

func TestFreshContextPerRequest(t *testing.T) {
	var seen []int

	rtr := bworker.NewRouter(testEnv{})
	rtr.HandleFunc("/mutate", func(c *bworker.Context[testEnv]) (any, error) {
		seen = append(seen, c.Response.Status)
		require.Empty(t, c.Data)
		require.Empty(t, c.Response.Header)

		c.Response.Status = http.StatusTeapot
		c.Response.Header.Set("X-Leak", "yes")
		c.Data["leak"] = true

		return nil, nil
	})

	first := fetch(t, rtr, http.MethodGet, "/mutate", nil)
	second := fetch(t, rtr, http.MethodGet, "/mutate", nil)

	require.Equal(t, []int{http.StatusOK, http.StatusOK}, seen)
	require.Equal(t, http.StatusTeapot, first.Status)
	require.Equal(t, http.StatusTeapot, second.Status)
	require.Equal(t, "null", string(second.Body))
}

type rawHandler struct{ bworker.BaseHandler[testEnv] }

func (rawHandler) Get(c *bworker.Context[testEnv]) (any, error) {
	c.Response.Header.Set("X-Ignored", "1")

	resp := bworker.NewResponse(http.StatusAccepted, []byte("raw body"))
	resp.Header.Set("Content-Type", "text/plain")

	return resp, nil
}

func TestRawResponse(t *testing.T) {
	cors := &bworker.CORSConfig[testEnv]{Origins: []string{"*"}}

	t.Run("passthrough by default", func(t *testing.T) {
		rtr := bworker.NewRouter(testEnv{}, bworker.WithCORS(cors))
		rtr.Handle("/raw", rawHandler{})

		resp := fetch(t, rtr, http.MethodGet, "/raw", nil)
		require.Equal(t, http.StatusAccepted, resp.Status)
		require.Equal(t, "raw body", string(resp.Body))
		require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
		require.Empty(t, resp.Header.Values("Access-Control-Allow-Origin"))
		require.Empty(t, resp.Header.Values("X-Ignored"))
	})

	t.Run("with cors", func(t *testing.T) {
		rtr := bworker.NewRouter(testEnv{}, bworker.WithCORS(cors), bworker.WithRawResponseCORS[testEnv](true))
		rtr.Handle("/raw", rawHandler{})

		resp := fetch(t, rtr, http.MethodGet, "/raw", nil)
		require.Equal(t, http.StatusAccepted, resp.Status)
		require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestBuildIdempotent(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	rtr.Handle("/users/:id", userHandler{})

	h1 := rtr.Build()
	h2 := rtr.Build()
	require.Same(t, h1, h2)

	require.Equal(t, http.StatusOK, fetch(t, h2, http.MethodGet, "/users/1", nil).Status)
	require.Equal(t, http.StatusNotFound, fetch(t, h2, http.MethodGet, "/nope", nil).Status)
	require.Equal(t, http.StatusNoContent, fetch(t, h2, http.MethodOptions, "/nope", nil).Status)

	require.PanicsWithValue(t, "bworker: cannot register middleware or handlers after Build", func() {
		rtr.Handle("/other", userHandler{})
	})
}

func TestBuildWithOwnMux(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rtr := bworker.NewRouter(testEnv{}, bworker.WithServeMux[testEnv](mux))
	rtr.Handle("/users/:id", userHandler{})
	rtr.Build()

	require.Equal(t, http.StatusNoContent, fetch(t, mux, http.MethodGet, "/health", nil).Status)
	require.Equal(t, http.StatusOK, fetch(t, mux, http.MethodGet, "/users/1", nil).Status)
}

func TestRegistrationPanics(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	rtr.Handle("/users/:id", userHandler{}, "user")

	require.PanicsWithValue(t, "bworker: pattern /users/:name conflicts with /users/:id", func() {
		rtr.Handle("/users/:name", userHandler{})
	})

	require.PanicsWithValue(t, "bworker: pattern with name \"user\" already exists", func() {
		rtr.Handle("/people/:id", userHandler{}, "user")
	})

	require.Panics(t, func() { rtr.Handle("users", userHandler{}) })
	require.Panics(t, func() { rtr.UseAt("/a/*/b", nil) })
	require.Panics(t, func() {
		bworker.WithCORS(&bworker.CORSConfig[testEnv]{Headers: "Bad Header"})
	})
}

func TestReverseRoute(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	rtr.Handle("/users/:id", userHandler{}, "get-user")

	loc, err := rtr.Reverse("get-user", "42")
	require.NoError(t, err)
	require.Equal(t, "/users/42", loc)

	resp := fetch(t, rtr, http.MethodGet, loc, nil)
	require.JSONEq(t, `{"userId":"42"}`, string(resp.Body))
}

type depsHandler struct {
	bworker.BaseHandler[testEnv]
	logs *zap.Logger
}

func (h depsHandler) Get(*bworker.Context[testEnv]) (any, error) {
	return map[string]bool{"hasLogger": h.logs != nil}, nil
}

func TestHandleFactory(t *testing.T) {
	var created atomic.Int32

	rtr := bworker.NewRouter(testEnv{})
	rtr.HandleFactory("/deps", func(deps bworker.HandlerDeps) bworker.Handler[testEnv] {
		created.Add(1)
		require.Nil(t, deps.State)

		return depsHandler{logs: deps.Logger}
	})

	for range 3 {
		resp := fetch(t, rtr, http.MethodGet, "/deps", nil)
		require.JSONEq(t, `{"hasLogger":true}`, string(resp.Body))
	}

	require.EqualValues(t, 1, created.Load())
}

func TestFetchWithEnv(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{Greeting: "default"})
	rtr.HandleFunc("/greet", func(c *bworker.Context[testEnv]) (any, error) {
		return c.Env.Greeting, nil
	})

	resp := rtr.Fetch(httptest.NewRequest(http.MethodGet, "/greet", nil), testEnv{Greeting: "hello"})
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "OK", resp.StatusText)
	require.Equal(t, `"hello"`, string(resp.Body))

	require.Equal(t, `"default"`, string(fetch(t, rtr, http.MethodGet, "/greet", nil).Body))

	resp = rtr.Fetch(httptest.NewRequest(http.MethodGet, "/nope", nil), testEnv{})
	require.Equal(t, http.StatusNotFound, resp.Status)
}

func TestInvalidResponseIsReplaced(t *testing.T) {
	rtr := bworker.NewRouter(testEnv{})
	rtr.HandleFunc("/bad", func(c *bworker.Context[testEnv]) (any, error) {
		c.Response.Status = 0
		return "x", nil
	})

	resp := fetch(t, rtr, http.MethodGet, "/bad", nil)
	require.Equal(t, http.StatusInternalServerError, resp.Status)
	require.JSONEq(t, `{"error":"Internal Server Error"}`, string(resp.Body))
}
