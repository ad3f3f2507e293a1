package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/backend"
	"gastos/internal/cli"
	"gastos/internal/config"
	apphttp "gastos/internal/http"
	applog "gastos/internal/log"
	"gastos/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	err = serve(ctx, logger, cfg, backendCfg.Type, res)
	if cerr := res.Cleanup(); cerr != nil {
		logger.Error("Backend cleanup failed", applog.FieldError, cerr)
	}
	if err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// serve runs the HTTP server and the change worker until ctx ends.
func serve(ctx context.Context, logger *applog.Logger, cfg *config.Config, backendType backend.BackendType, res *backend.BackendResult) error {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate JWT secret: %w", err)
		}
		logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Service:        res.Service,
		Location:       cfg.Location(),
		JWTSecret:      secret,
		SessionTTL:     cfg.SessionTTL,
		MaxSessions:    cfg.MaxSessions,
		AuthRateLimit:  cfg.AuthRateLimit,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger.WithComponent(applog.ComponentHTTP),
	})
	if err != nil {
		return fmt.Errorf("configure server: %w", err)
	}

	// No WriteTimeout: expense streams stay open for the life of the session
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting gastos server",
			"port", cfg.Port,
			"backend", backendType,
			"timezone", cfg.Location().String(),
			"change_bus", res.Bus != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if res.Bus != nil {
		changes := worker.NewChangeWorker(res.Bus, res.Service, cfg.ResyncInterval)
		g.Go(func() error {
			err := changes.Run(ctx)
			handled, rejected := changes.Stats()
			logger.Info("Change worker stopped", "handled", handled, "rejected", rejected)
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		return nil
	})

	return g.Wait()
}
