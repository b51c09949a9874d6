// Package bwapptest provides test helpers for bwapp applications.
//
// It builds the same DI graph as [bwapp.NewApp] on an [fxtest.App], which fails the test
// immediately on DI errors.
//
//	bwapptest.SetBaseEnv(t, 18081)
//	app := bwapptest.New[TestEnv](t, routing, bwapp.WithAWSClient(...))
//	app.RequireStart()
//	t.Cleanup(app.RequireStop)
package bwapptest

import (
	"testing"

	"github.com/advdv/bworker/bwapp"
	"go.uber.org/fx/fxtest"
)

// App embeds *fxtest.App for testing bwapp applications.
type App struct {
	*fxtest.App
}

// New creates a test app with the same DI graph as [bwapp.NewApp].
func New[E bwapp.Environment](t testing.TB, routing any, opts ...bwapp.Option) *App {
	return &App{App: fxtest.New(t, bwapp.FxOptions[E](routing, opts...)...)}
}
