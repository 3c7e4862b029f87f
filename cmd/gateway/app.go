package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/orderflow/gateway/internal/config"
	"github.com/orderflow/gateway/internal/health"
	"github.com/orderflow/gateway/internal/observability"
	"github.com/orderflow/gateway/internal/proxy"
	"github.com/orderflow/gateway/internal/ratelimit"
	"github.com/orderflow/gateway/internal/ratelimit/store"
)

const (
	defaultShutdownTimeout   = 30 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// application holds all application components.
type application struct {
	config        *config.Config
	logger        observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	store         store.Store
	healthChecker *health.Checker
	handler       http.Handler

	server          *http.Server
	metricsServer   *http.Server
	listener        net.Listener
	metricsListener net.Listener
}

// newApplication wires every component. On error, whatever was already
// started is released.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (app *application, err error) {
	metrics := observability.NewMetrics("gateway")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := observability.NewTracer(ctx, tracerConfigFor(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tracer.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	counters, err := newCounterStore(ctx, cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = counters.Close()
		}
	}()

	controller, limiter, err := newAdmission(cfg, counters, logger, metrics)
	if err != nil {
		return nil, err
	}

	authenticator, err := newAuthenticator(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	routes, err := proxy.RoutesFromConfig(cfg.Routes)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		logger.Warn("no routes configured, only health endpoints are served")
	}

	checker := health.NewChecker(version, logger)
	checker.RegisterCheck("counter_store", health.StoreCheck(counters, limiter.FailureMode() == ratelimit.FailOpen))

	handler, err := proxy.NewRouter(routes,
		proxy.WithMiddleware(buildMiddleware(cfg, logger, metrics, tracer, authenticator)...),
		proxy.WithAdmission(controller.Handler),
		proxy.WithHealth(checker),
		proxy.WithRouterLogger(logger),
		proxy.WithProxyOptions(proxy.WithProxyMetrics(proxy.NewMetrics(metrics.Registry()))),
	)
	if err != nil {
		return nil, err
	}

	app = &application{
		config:        cfg,
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
		store:         counters,
		healthChecker: checker,
		handler:       handler,
		server: &http.Server{
			Addr:              cfg.Listener.Address,
			Handler:           handler,
			ReadTimeout:       cfg.Listener.ReadTimeout.Duration(),
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			WriteTimeout:      cfg.Listener.WriteTimeout.Duration(),
			IdleTimeout:       cfg.Listener.IdleTimeout.Duration(),
		},
	}

	if cfg.Metrics.Enabled {
		app.metricsServer = newMetricsServer(cfg.Metrics, metrics, checker)
	}

	return app, nil
}

// start binds the listeners and serves in the background. Serve errors
// are delivered on the returned channel.
func (a *application) start() (<-chan error, error) {
	errCh := make(chan error, 2)

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	a.listener = ln

	if a.metricsServer != nil {
		mln, err := net.Listen("tcp", a.metricsServer.Addr)
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("failed to listen on %s: %w", a.metricsServer.Addr, err)
		}
		a.metricsListener = mln

		a.logger.Info("starting metrics server",
			observability.String("address", mln.Addr().String()),
			observability.String("metrics_path", a.config.Metrics.Path),
		)
		go serve(a.metricsServer, mln, errCh)
	}

	a.logger.Info("gateway listening", observability.String("address", ln.Addr().String()))
	go serve(a.server, ln, errCh)

	return errCh, nil
}

func serve(server *http.Server, ln net.Listener, errCh chan<- error) {
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- err
	}
}
