package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prohmpiriya/botfleet/internal/di"
	"github.com/prohmpiriya/botfleet/internal/handler"
	"github.com/prohmpiriya/botfleet/internal/session"
	"github.com/prohmpiriya/botfleet/pkg/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, every active tenant bot and the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		log.Warn("Telemetry disabled", zap.Error(err))
	}

	c, err := di.NewContainer(ctx, &di.ContainerConfig{Config: cfg, Log: log})
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.Manager.LoadAll(ctx); err != nil {
		log.Error("Failed to load tenant instances", zap.Error(err))
	}

	if c.Master != nil {
		transport, err := c.DialBot(ctx, cfg.Master.BotCredential)
		if err != nil {
			log.Error("Control plane bot did not start", zap.Error(err))
		} else {
			go func() {
				if err := c.Master.Run(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Control plane stopped", zap.Error(err))
				}
			}()
		}
	}

	if mc, ok := c.SessionCache.(*session.MemoryCache); ok {
		go mc.RunJanitor(ctx, cfg.Session.PruneInterval)
	}
	if c.WebhookLimiter != nil {
		go c.WebhookLimiter.RunJanitor(ctx, time.Minute)
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.NewRouter(c.RouterConfig()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown", zap.Error(err))
	}
	c.Manager.Shutdown(shutdownCtx)
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown", zap.Error(err))
	}
	log.Info("Stopped")
	return nil
}
