// Package restserver serves the status endpoints of a processing run
package restserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/peaktree/internal/metrics"
	"github.com/chrissnell/peaktree/pkg/config"
)

// Controller represents the status server controller
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	cfg      *config.ConfigData
	run      *RunStatus
	Server   http.Server
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates a status server listening on listenAddr
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, run *RunStatus, listenAddr string, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if run == nil {
		run = NewRunStatus("")
	}
	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		cfg:    cfg,
		run:    run,
		logger: logger,
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = listenAddr
	ctrl.Server.Handler = ctrl.Router()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second
	return ctrl
}

// StartController starts the status server
func (c *Controller) StartController() error {
	c.logger.Infow("starting status server", "addr", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			c.logger.Errorf("status server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the status server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Router configures the HTTP router with all endpoints
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(metrics.Middleware)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/run", c.handlers.GetRun).Methods(http.MethodGet)
	router.HandleFunc("/stations", c.handlers.GetStations).Methods(http.MethodGet)
	router.HandleFunc("/stations/{name}", c.handlers.GetStation).Methods(http.MethodGet)
	router.HandleFunc("/failures", c.handlers.GetFailures).Methods(http.MethodGet)

	return router
}
