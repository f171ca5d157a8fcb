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

	"github.com/learnhub/offline-sync/internal/relay"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	port := os.Getenv("RELAY_PORT")
	if port == "" {
		port = "7399"
	}

	hub := relay.NewHub(logger)

	mux := http.NewServeMux()
	mux.Handle("/bus", hub)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		// Loopback only: the relay coordinates agents on one machine.
		Addr:        "127.0.0.1:" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("relay starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("relay error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("relay shutdown error", zap.Error(err))
	}

	logger.Info("relay stopped cleanly")
}
