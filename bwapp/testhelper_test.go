package bwapp_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/advdv/bworker/bwapp"
	"github.com/stretchr/testify/require"
)

// testEnv is an app environment with a field beyond BaseEnvironment.
type testEnv struct {
	bwapp.BaseEnvironment
	TableName string `env:"TABLE_NAME" envDefault:"objects"`
}

var client = &http.Client{Timeout: 5 * time.Second}

// do performs a request against a started test app and returns the status and body.
func do(t *testing.T, method, url string, hdr http.Header) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	require.NoError(t, err)

	for k, v := range hdr {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}
