package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"loop-dash/internal/alerts"
	"loop-dash/internal/config"
	"loop-dash/internal/dashboard"
	"loop-dash/internal/feed"
	"loop-dash/internal/market"
	"loop-dash/internal/metrics"
	"loop-dash/internal/morpho"
	"loop-dash/internal/state"
	"loop-dash/internal/state/sqlite"
	"loop-dash/internal/timescale"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// marketSource is the part of the gateway the app and operator use.
type marketSource interface {
	Snapshot() market.Snapshot
	Refresh()
}

// operatorBot is the chat transport for operator commands.
type operatorBot interface {
	GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]alerts.Update, error)
	Send(ctx context.Context, message string) error
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	client    *morpho.Client
	gateway   *market.Gateway
	markets   marketSource
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	timescale *timescale.Writer
	alerts    *alerts.Telegram
	bot       operatorBot
	hub       *feed.Hub
	server    *dashboard.Server

	operatorWarned bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	ts, err := timescale.New(cfg.Timescale, m, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	alertsClient := alerts.NewTelegram(cfg.Telegram, log)

	client := morpho.New(cfg.GraphQL.URL, cfg.GraphQL.Timeout, log)
	opts := market.Options{
		PollInterval: cfg.GraphQL.PollInterval,
		Skip:         cfg.GraphQL.Skip,
		First:        cfg.GraphQL.PageSize,
		Store:        store,
		Metrics:      m,
	}
	if ts != nil {
		opts.Recorder = ts
	}
	if alertsClient.Enabled() {
		opts.Notifier = alertsClient
	}
	gateway := market.NewGateway(client, opts, log)

	hub := feed.NewHub(gateway, cfg.Feed.PingInterval, m, log)
	hub.AllowOrigins(cfg.Feed.AllowedOrigins...)
	server, err := dashboard.NewServer(gateway, hub, m, log)
	if err != nil {
		_ = store.Close()
		_ = ts.Close()
		return nil, err
	}
	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		client:    client,
		gateway:   gateway,
		markets:   gateway,
		metrics:   m,
		prom:      prom,
		timescale: ts,
		alerts:    alertsClient,
		bot:       alertsClient,
		hub:       hub,
		server:    server,
	}, nil
}

// Run starts polling and serves the dashboard until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.timescale.Close()

	a.timescale.Start(ctx)
	a.gateway.Start(ctx)
	a.startOperator(ctx)

	servers := []*http.Server{{
		Addr:         a.cfg.HTTP.Address,
		Handler:      a.server.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		// Feed connections are hijacked, so Shutdown does not end them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}}
	if a.prom != nil {
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
		servers = append(servers, &http.Server{
			Addr:              a.cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			a.log.Info("http listening", zap.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		a.log.Error("http server failed", zap.Error(err))
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("http shutdown failed", zap.String("address", srv.Addr), zap.Error(err))
		}
	}
	wg.Wait()
	a.log.Info("app stopped")
	return runErr
}
