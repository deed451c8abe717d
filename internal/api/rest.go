// Package api wires the REST surface: the Echo router, the per-feature
// controllers and the live activity socket.
package api

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gramvault/gramvault/internal/api/imports"
	"github.com/gramvault/gramvault/internal/event"
	"github.com/gramvault/gramvault/internal/http/websocket"
	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("API")

const importUpdateTitle = "IMPORT_UPDATE"

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080" validate:"hostname_port"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// RestGateway is a thin wrapper around the Echo router: it creates
	// the routes, owns the websocket hub and forwards job update events
	// from the bus on to connected socket clients. Polling remains the
	// source of truth; the socket is advisory.
	RestGateway struct {
		config            RestConfig
		ec                *echo.Echo
		socket            *websocket.SocketHub
		importService     imports.Service
		importsController controller
	}
)

func NewRestGateway(config RestConfig, importService imports.Service, eventBus event.EventHandler) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	gateway := &RestGateway{
		config:            config,
		ec:                ec,
		socket:            socket,
		importService:     importService,
		importsController: imports.New(importService),
	}

	socket.WithConnectionCallback(func() any {
		return map[string]any{"jobs": importService.AllJobs()}
	})
	eventBus.RegisterAsyncHandlerFunction(event.ImportJobUpdateEvent, gateway.broadcastJobUpdate)
	eventBus.RegisterAsyncHandlerFunction(event.ImportJobCompleteEvent, gateway.broadcastJobUpdate)

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/gramvault/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	importGroup := ec.Group("/api/gramvault/v1/instagram-import")
	gateway.importsController.SetRoutes(importGroup)

	return gateway
}

// Run starts the router and the socket hub, blocking until the context is
// cancelled or the router fails.
func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// broadcastJobUpdate pushes the job's latest snapshot to all socket
// clients whenever the import service reports a change.
func (gateway *RestGateway) broadcastJobUpdate(_ event.Event, payload event.Payload) {
	jobID, ok := payload.(uuid.UUID)
	if !ok {
		return
	}

	if snapshot, found := gateway.importService.GetJob(jobID); found {
		gateway.socket.Broadcast(importUpdateTitle, snapshot)
	}
}
