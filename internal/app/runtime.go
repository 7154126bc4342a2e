package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"bidline/internal/config"
	"bidline/internal/db"
	"bidline/internal/documents"
	"bidline/internal/engine"
	"bidline/internal/identity"
	"bidline/internal/logging"
	"bidline/internal/metrics"
	"bidline/internal/migrate"
	"bidline/internal/relay"
	"bidline/internal/server"
)

const shutdownTimeout = 5 * time.Second

// Runtime is one wired bidline process: store, engine, identity gateway,
// document store and event relay.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Engine    engine.Engine
	Gateway   identity.Gateway
	Documents documents.FileStore
	Metrics   *metrics.Metrics
	Relay     *relay.Dispatcher

	closers []func() error
}

// LoadConfig reads path when given, otherwise the workspace config file,
// falling back to defaults.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path == "" {
		return config.LoadOptional(workspace)
	}
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Workspace == "" || cfg.Database.Workspace == "." {
		cfg.Database.Workspace = workspace
	}
	return cfg, nil
}

// Open connects and migrates the database and wires every component from
// cfg. Log records go to logOut (stderr when nil).
func Open(ctx context.Context, cfg *config.Config, logOut io.Writer) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: logging.New(cfg.Log, logOut)}
	dbCfg := db.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, Workspace: cfg.Database.Workspace}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	rt.DB = conn
	rt.closers = append(rt.closers, conn.Close)
	if err := migrate.Migrate(conn, dbCfg.Dialect()); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rt.Metrics = metrics.New()
	rt.Engine = engine.New(conn, dbCfg.Dialect())
	rt.Engine.Metrics = rt.Metrics
	rt.Engine.Logger = rt.Logger.With("module", "engine")
	rt.Engine.Retry = engine.RetryPolicy{
		MaxAttempts: cfg.Engine.Retry.MaxAttempts,
		BaseDelay:   cfg.Engine.Retry.BaseDelay.Duration,
		MaxDelay:    cfg.Engine.Retry.MaxDelay.Duration,
	}

	var revocations identity.RevocationStore = identity.NewMemoryRevocations()
	if cfg.Auth.RedisURL != "" {
		client, err := identity.Connect(ctx, cfg.Auth.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		store := identity.NewRedisRevocations(client)
		rt.closers = append(rt.closers, store.Close)
		if err := store.Ping(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		revocations = store
	}
	rt.Gateway = identity.Gateway{
		Repo:        rt.Engine.Repo,
		Secret:      cfg.Auth.JWTSecret,
		TokenTTL:    cfg.Auth.TokenTTL.Duration,
		Revocations: revocations,
	}
	rt.Documents = documents.FileStore{Root: cfg.DocumentsRoot(), MaxBytes: cfg.Documents.MaxBytes}

	if err := rt.wireRelay(); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wireRelay() error {
	rc := rt.Config.Relay
	d := relay.NewDispatcher(rt.Engine.Repo, rc.Interval.Duration, rc.Batch)
	d.Logger = rt.Logger.With("module", "relay")
	d.Metrics = rt.Metrics
	for _, hook := range rc.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		timeout := time.Duration(hook.TimeoutSeconds) * time.Second
		d.Add(relay.NewWebhookSink(hook.Name, hook.URL, hook.Secret, timeout), hook.Events)
	}
	if len(rc.Kafka.Brokers) > 0 {
		sink, err := relay.NewKafkaSink(rc.Kafka.Brokers, rc.Kafka.Topic)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, sink.Close)
		d.Add(sink, nil)
	}
	rt.Relay = d
	return nil
}

// Close releases every resource opened by Open, newest first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Handler builds the HTTP API for the runtime.
func (rt *Runtime) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:         rt.Engine,
		Gateway:        rt.Gateway,
		Documents:      rt.Documents,
		Metrics:        rt.Metrics,
		Logger:         rt.Logger,
		BasePath:       rt.Config.Server.BasePath,
		DevLogin:       rt.Config.Server.DevLogin,
		RequestTimeout: rt.Config.Server.RequestTimeout.Duration,
	})
}

// Serve runs the HTTP API, the optional gRPC health endpoint and the relay
// until ctx is cancelled or a listener fails.
func (rt *Runtime) Serve(ctx context.Context) error {
	if rt.Config.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required to serve (or set BIDLINE_AUTH_JWT_SECRET)")
	}
	handler, err := rt.Handler()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	srv := &http.Server{
		Addr:              rt.Config.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		rt.Logger.Info("http server started", "addr", srv.Addr, "base_path", rt.Config.Server.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var health *server.GRPCHealth
	if addr := rt.Config.Server.GRPCAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			srv.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
		health = server.NewGRPCHealth(rt.DB, rt.Logger)
		go func() {
			rt.Logger.Info("grpc health server started", "addr", ln.Addr().String())
			if err := health.Serve(ln); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		go health.Watch(ctx, 10*time.Second)
	}

	if rt.Relay != nil && rt.Relay.Len() > 0 {
		go rt.Relay.Run(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()
	rt.Logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if health != nil {
		health.Stop()
	}
	return runErr
}
