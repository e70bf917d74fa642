package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/NikitaDmitryuk/tube-proxy/internal/api"
	"github.com/NikitaDmitryuk/tube-proxy/internal/app"
	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/shutdown"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to initialize configuration")
	}

	logutils.InitLogger(cfg.LogLevel)
	logutils.Log.WithFields(map[string]any{
		"version":    Version,
		"build_time": BuildTime,
	}).Info("Starting tube-proxy")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to initialize application")
	}
	application.Start()

	server := api.NewServer(application, cfg.ListenAddr, cfg.APIKey)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutils.Log.WithError(err).Error("API server stopped unexpectedly")
			cancel()
		}
	}()

	shutdowns := shutdown.NewManager(shutdown.DefaultTimeout)
	shutdowns.Register(shutdown.Func{ServiceName: "http_server", Fn: server.Shutdown})
	shutdowns.Register(shutdown.Func{ServiceName: "app", Fn: func(context.Context) error {
		application.Close()
		return nil
	}})

	logutils.Log.Info("tube-proxy started successfully")

	if err := shutdowns.WaitForShutdown(ctx); err != nil {
		logutils.Log.WithError(err).Error("Shutdown finished with errors")
	}
	logutils.Log.Info("tube-proxy shutdown complete")
}
