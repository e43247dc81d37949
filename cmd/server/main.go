package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/hakusai-dev/axiswolf-backend/internal/config"
	"github.com/hakusai-dev/axiswolf-backend/internal/httpapi"
	"github.com/hakusai-dev/axiswolf-backend/internal/hub"
	"github.com/hakusai-dev/axiswolf-backend/internal/store"
)

func main() {
	cfg := config.Load()
	logger := buildLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store = store.NewMemory()
	if cfg.DatabaseURL != "" {
		g, err := store.OpenGorm(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		st = g
		logger.Info("using postgres store")
	} else {
		logger.Info("using in-memory store")
	}

	h := hub.NewHub(ctx, st, logger)
	api := &httpapi.API{Hub: h, Store: st, Log: logger}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.SetupRoutes(api)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
