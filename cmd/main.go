package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cauldronwatch/internal/api"
	"cauldronwatch/internal/config"
	"cauldronwatch/internal/handlers"
	"cauldronwatch/internal/history"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/repository"
	"cauldronwatch/internal/repository/db"
	"cauldronwatch/internal/server"
	"cauldronwatch/internal/service"
	"cauldronwatch/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	// open DB
	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	backend := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)
	st := store.New(log)
	cache := history.NewCache(cfg.History.CacheTTL)

	services := service.NewService(service.Deps{
		Backend:      backend,
		Store:        st,
		Cache:        cache,
		Repos:        repos,
		Log:          log,
		WSURL:        cfg.Backend.WSURL,
		InitialHours: cfg.History.InitialHours,
		SigningKey:   cfg.Auth.SigningKey,
		TokenTTL:     cfg.Auth.TokenTTL,
	})
	apiHandler := handlers.NewHandler(services, st, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// bootstrap: health check, reference data, initial history, live socket
	socketCloser := services.Bootstrap.Run(ctx)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, socketCloser, log)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, socketCloser io.Closer, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop the live socket and background goroutines
	if socketCloser != nil {
		_ = socketCloser.Close()
	}
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
