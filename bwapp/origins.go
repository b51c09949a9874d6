package bwapp

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/advdv/bworker"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultOriginsTTL is how long an origin list read from SSM is used before it is read again.
const DefaultOriginsTTL = time.Minute

// SSMAPI is the part of the SSM client the origin list uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMOriginList reads the allowed CORS origins from an SSM parameter holding a comma
// separated list. The list is cached, when a refresh fails the previous list stays in use.
type SSMOriginList struct {
	client SSMAPI
	name   string
	ttl    time.Duration
	logs   *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	origins []string
	expires time.Time
}

// NewSSMOriginList inits the list for the parameter name. A ttl of zero uses
// DefaultOriginsTTL.
func NewSSMOriginList(client SSMAPI, name string, ttl time.Duration, logs *zap.Logger) *SSMOriginList {
	return &SSMOriginList{
		client: client,
		name:   name,
		ttl:    lo.Ternary(ttl > 0, ttl, DefaultOriginsTTL),
		logs:   logs.Named("origins"),
		now:    time.Now,
	}
}

// Origins returns the current list of allowed origins.
func (l *SSMOriginList) Origins(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.origins != nil && l.now().Before(l.expires) {
		return l.origins, nil
	}

	out, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(l.name)})
	if err != nil {
		if l.origins != nil {
			l.logs.Warn("failed to refresh origins, keeping previous list",
				zap.String("parameter", l.name), zap.Error(err))

			return l.origins, nil
		}

		return nil, errors.Wrapf(err, "get parameter %q", l.name)
	}

	var value string
	if out.Parameter != nil {
		value = aws.ToString(out.Parameter.Value)
	}

	l.origins = lo.Compact(lo.Map(strings.Split(value, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	l.expires = l.now().Add(l.ttl)

	return l.origins, nil
}

// Allow decides the allowed origin of a request. A list containing "*" allows any origin.
func (l *SSMOriginList) Allow(r *http.Request) (string, bool) {
	origins, err := l.Origins(r.Context())
	if err != nil {
		l.logs.Error("failed to read origins", zap.Error(err))
		return "", false
	}

	if lo.Contains(origins, "*") {
		return "*", true
	}

	origin := r.Header.Get("Origin")
	if origin == "" || !lo.Contains(origins, origin) {
		return "", false
	}

	return origin, true
}

// OriginsFrom adapts the list to the router's CORS configuration.
func OriginsFrom[E bworker.Environment](l *SSMOriginList) bworker.OriginFunc[E] {
	return func(r *http.Request, _ E, _ bworker.Data) (string, bool) {
		return l.Allow(r)
	}
}
