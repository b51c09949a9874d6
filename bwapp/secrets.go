package bwapp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-secretsmanager-caching-go/v2/secretcache"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// SecretReader reads secret strings.
type SecretReader interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// AWSSecretReader reads secrets from Secrets Manager through the caching client.
type AWSSecretReader struct {
	cache *secretcache.Cache
}

// NewAWSSecretReader creates the reader. Cached secrets are refreshed after ttl, zero keeps the
// client's default. No secret is read until it is requested.
func NewAWSSecretReader(cfg aws.Config, ttl time.Duration) (*AWSSecretReader, error) {
	client := secretsmanager.NewFromConfig(cfg)

	cache, err := secretcache.New(func(c *secretcache.Cache) {
		c.Client = client
		if ttl > 0 {
			c.CacheItemTTL = ttl.Nanoseconds()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create secret cache")
	}

	return &AWSSecretReader{cache: cache}, nil
}

func provideSecretReader(env Environment, cfg aws.Config) (SecretReader, error) {
	return NewAWSSecretReader(cfg, env.secretCacheTTL())
}

// GetSecretString returns the secret, from the cache when it is fresh.
func (r *AWSSecretReader) GetSecretString(ctx context.Context, secretID string) (string, error) {
	secret, err := r.cache.GetSecretStringWithContext(ctx, secretID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get secret %q", secretID)
	}

	return secret, nil
}

// SecretRef points at a secret, or at a value inside a JSON secret when Path is set.
type SecretRef struct {
	ID   string
	Path string
}

// ParseSecretRef parses "id" or "id#path", e.g. "prod/db#credentials.password". Keeping the
// reference in a single string lets it live in one environment variable.
func ParseSecretRef(s string) (SecretRef, error) {
	id, path, _ := strings.Cut(s, "#")
	if id = strings.TrimSpace(id); id == "" {
		return SecretRef{}, errors.Newf("secret reference %q has no secret id", s)
	}

	return SecretRef{ID: id, Path: strings.TrimSpace(path)}, nil
}

func (ref SecretRef) String() string {
	if ref.Path == "" {
		return ref.ID
	}

	return ref.ID + "#" + ref.Path
}

func secretRef(secretID string, jsonPath []string) (SecretRef, error) {
	if len(jsonPath) > 1 {
		return SecretRef{}, errors.New("bwapp: Secret accepts at most one jsonPath argument")
	}

	ref := SecretRef{ID: secretID}
	if len(jsonPath) == 1 {
		ref.Path = jsonPath[0]
	}

	return ref, nil
}

// lookupSecret returns the raw secret, or the raw JSON at the gjson path. The string form of the
// selected value is returned alongside for callers that want text.
func lookupSecret(ctx context.Context, reader SecretReader, ref SecretRef) (raw, text string, err error) {
	secret, err := reader.GetSecretString(ctx, ref.ID)
	if err != nil {
		return "", "", err
	}

	if ref.Path == "" {
		return secret, secret, nil
	}

	result := gjson.Get(secret, ref.Path)
	if !result.Exists() {
		return "", "", errors.Newf("secret path %q not found in secret %q", ref.Path, ref.ID)
	}

	return result.Raw, result.String(), nil
}

func readSecret(ctx context.Context, reader SecretReader, ref SecretRef) (string, error) {
	_, text, err := lookupSecret(ctx, reader, ref)
	return text, err
}

func decodeSecret(ctx context.Context, reader SecretReader, ref SecretRef, v any) error {
	raw, _, err := lookupSecret(ctx, reader, ref)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return errors.Wrapf(err, "decode secret %s", ref)
	}

	return nil
}
