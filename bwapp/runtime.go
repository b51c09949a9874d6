package bwapp

import (
	"context"
	"net/http"

	"github.com/advdv/bworker"
	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
)

// Runtime provides access to app-scoped dependencies. Inject it into handler factories via fx
// instead of reaching for globals.
//
//	type Handlers struct {
//	    rt *bwapp.Runtime[Env]
//	}
//
//	func (h *Handlers) GetItem(c *bworker.Context[Env]) (any, error) {
//	    self, _ := h.rt.Reverse("get-item", c.Params.Get("id"))
//	    key, err := h.rt.Secret(c, "api-credentials", "key")
//	    // ...
//	}
type Runtime[E Environment] struct {
	env       E
	router    *bworker.Router[E]
	secrets   SecretReader
	transport http.RoundTripper
}

// RuntimeParams holds optional dependencies for Runtime.
type RuntimeParams struct {
	SecretReader SecretReader
	Transport    http.RoundTripper
}

// NewRuntime creates a new Runtime with the given dependencies.
func NewRuntime[E Environment](env E, router *bworker.Router[E], params RuntimeParams) *Runtime[E] {
	return &Runtime[E]{
		env:       env,
		router:    router,
		secrets:   params.SecretReader,
		transport: params.Transport,
	}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Reverse returns the URL for a named route.
func (r *Runtime[E]) Reverse(name string, vals ...string) (string, error) {
	return r.router.Reverse(name, vals...)
}

// Secret reads a secret from Secrets Manager. With a jsonPath the secret is parsed as JSON and
// the value at the gjson path is returned, e.g. "database.password". Secrets are cached but
// looked up per call so rotation works without a redeploy.
func (r *Runtime[E]) Secret(ctx context.Context, secretID string, jsonPath ...string) (string, error) {
	ref, err := secretRef(secretID, jsonPath)
	if err != nil {
		return "", err
	}

	if r.secrets == nil {
		return "", errSecretsNotConfigured
	}

	return readSecret(ctx, r.secrets, ref)
}

// SecretAt reads the secret a reference such as "prod/db#password" points at, see
// [ParseSecretRef].
func (r *Runtime[E]) SecretAt(ctx context.Context, ref string) (string, error) {
	parsed, err := ParseSecretRef(ref)
	if err != nil {
		return "", err
	}

	if r.secrets == nil {
		return "", errSecretsNotConfigured
	}

	return readSecret(ctx, r.secrets, parsed)
}

// DecodeSecret decodes the JSON a secret reference points at into v.
//
//	var creds struct{ User, Password string }
//	err := h.rt.DecodeSecret(c, c.Env.DatabaseSecret, &creds)
func (r *Runtime[E]) DecodeSecret(ctx context.Context, ref string, v any) error {
	parsed, err := ParseSecretRef(ref)
	if err != nil {
		return err
	}

	if r.secrets == nil {
		return errSecretsNotConfigured
	}

	return decodeSecret(ctx, r.secrets, parsed, v)
}

var errSecretsNotConfigured = errors.New("bwapp: secret reader not configured")

// NewRequest starts an outbound request whose spans are children of the current request.
//
//	var out Item
//	err := h.rt.NewRequest("https://api.example.com/items").
//	    Pathf("/%s", id).
//	    ToJSON(&out).
//	    Fetch(c)
func (r *Runtime[E]) NewRequest(url string) *requests.Builder {
	t := r.transport
	if t == nil {
		t = http.DefaultTransport
	}

	return newRequestBuilder(t, url)
}
