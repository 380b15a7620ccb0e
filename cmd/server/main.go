package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/yamesh/internal/adapter/driven/gateway/ws"
	handler "github.com/Wyydra/yamesh/internal/adapter/driving/http"
	"github.com/Wyydra/yamesh/internal/config"
	"github.com/Wyydra/yamesh/internal/logging"
)

func main() {
	var opts config.Options
	flag.StringVar(&opts.Port, "port", "", "listen port (env YAMESH_PORT)")
	flag.StringVar(&opts.JWTSecret, "jwt-secret", "", "token signing secret, empty disables auth (env YAMESH_JWT_SECRET)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "log level (env LOG_LEVEL)")
	pretty := flag.Bool("pretty", true, "human readable logs")
	flag.Parse()

	cfg, err := config.Load(opts)
	if err != nil {
		l := logging.Init("info", *pretty)
		l.Fatal().Err(err).Msg("Invalid configuration")
	}
	l := logging.Init(cfg.LogLevel, *pretty)

	hub := ws.NewHub()
	h := handler.NewHandler(hub, cfg.Server.JWTSecret, cfg.Server.AllowedOrigins, cfg.Server.StaticDir)

	go hub.Run()

	r := h.NewRouter()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info().
			Str("port", cfg.Server.Port).
			Bool("auth", cfg.Server.JWTSecret != "").
			Strs("origins", cfg.Server.AllowedOrigins).
			Msg("Starting relay hub")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("Server exited")
}
