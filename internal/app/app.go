package app

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otplogin/internal/login"
	"github.com/shandysiswandi/otplogin/internal/pkg/clock"
	"github.com/shandysiswandi/otplogin/internal/pkg/config"
	"github.com/shandysiswandi/otplogin/internal/pkg/goroutine"
	"github.com/shandysiswandi/otplogin/internal/pkg/idempotency"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"github.com/shandysiswandi/otplogin/internal/pkg/messaging"
	"github.com/shandysiswandi/otplogin/internal/pkg/router"
	"github.com/shandysiswandi/otplogin/internal/pkg/uid"
	"github.com/shandysiswandi/otplogin/internal/pkg/validator"
)

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	uuid      uid.StringID
	uid       uid.NumberID

	// resources
	cacheConn *redis.Client
	idemp     idempotency.Idempotency
	messaging messaging.Messaging

	// modules
	login *login.Module

	// server
	router     *router.Router
	httpServer *http.Server
	sseServer  *http.Server

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initCache()
	app.initMessaging()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
