package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"dmclient/internal/apiclient"
	"dmclient/internal/config"
	"dmclient/internal/httpserver"
	"dmclient/internal/logging"
	"dmclient/internal/metrics"
	"dmclient/internal/security"
	"dmclient/internal/service"
	"dmclient/internal/session"
	"dmclient/internal/store/sqlite"
	"dmclient/internal/ws"
)

// app wires the client components for one command invocation.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *sql.DB
	sessions *session.Manager
	api      *apiclient.Client
	dialer   *ws.Dialer
	metrics  *metrics.Collector
	server   *http.Server
	current  atomic.Pointer[service.ThreadService]
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("DMCLIENT_SESSION_SECRET is required")
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	a := &app{cfg: cfg, log: log, metrics: metrics.New(reg)}
	if metricsAddr != "" {
		if err := a.serveMetrics(reg); err != nil {
			return nil, err
		}
	}

	db, err := sqlite.Open(cfg.SessionDB)
	if err != nil {
		a.close()
		return nil, err
	}
	a.db = db
	if err := sqlite.Migrate(db); err != nil {
		a.close()
		return nil, err
	}

	sealer, err := security.NewSealer([]byte(cfg.SessionSecret), cfg.SessionTTL())
	if err != nil {
		a.close()
		return nil, err
	}
	a.sessions = session.NewManager(sqlite.NewSessionRepo(db), sealer, security.NewTokenReader())
	if cfg.Token != "" {
		if _, err := a.sessions.Use(cfg.Token); err != nil {
			a.close()
			return nil, fmt.Errorf("DMCLIENT_TOKEN: %w", err)
		}
	}

	a.api = apiclient.New(apiclient.Options{
		BaseURL: cfg.APIURL,
		Tokens:  a.sessions,
		Timeout: cfg.HTTPTimeout,
		Logger:  log,
	})
	a.dialer = ws.NewDialer(ws.Options{
		URL:          cfg.WSURL,
		Tokens:       a.sessions,
		Reconnect:    cfg.Reconnect,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
		Logger:       log,
		Metrics:      a.metrics,
	})
	log.Debug().Str("api", cfg.APIURL).Str("ws", logging.RedactURL(cfg.WSURL)).Msg("client: configured")
	return a, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	a.server = &http.Server{
		Handler:           httpserver.NewRouter(reg, a.status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
	a.log.Info().Str("addr", ln.Addr().String()).Msg("metrics: serving /metrics")
	return nil
}

func (a *app) status() httpserver.Status {
	svc := a.current.Load()
	if svc == nil {
		return httpserver.Status{}
	}
	st := httpserver.Status{
		ViewerID: svc.ViewerID(),
		PeerID:   svc.PeerID(),
		Live:     svc.Live(),
		Messages: len(svc.Messages()),
		HasMore:  svc.HasMore(),
	}
	if err := svc.LastError(); err != nil {
		st.Error = err.Error()
	}
	return st
}

func (a *app) thread() *service.ThreadService {
	svc := service.NewThreadService(a.api, a.dialer, a.sessions, a.metrics, a.log)
	a.current.Store(svc)
	return svc
}

func (a *app) close() {
	if a.api != nil {
		a.api.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
}
