package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/notes2anki/internal/ankiconnect"
	"github.com/dgallion1/notes2anki/internal/api"
	"github.com/dgallion1/notes2anki/internal/config"
	"github.com/dgallion1/notes2anki/internal/pipeline"
	"github.com/dgallion1/notes2anki/internal/stats"
	"github.com/dgallion1/notes2anki/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []api.Option
	var history pipeline.History

	// Deck history is optional.
	var db *store.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		if err := db.Initialize(ctx); err != nil {
			log.Error("database init failed", "error", err)
			os.Exit(1)
		}
		history = db
		opts = append(opts, api.WithDeckHistory(db))
		log.Info("deck history enabled")
	}

	var anki *ankiconnect.Client
	if cfg.AnkiConnectEnabled {
		anki = ankiconnect.NewClient(cfg.AnkiConnectURL, log)
		opts = append(opts, api.WithPusher(anki))
		log.Info("ankiconnect push enabled", "url", cfg.AnkiConnectURL)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, stats.NewRecorder(time.Hour), history, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, log, cfg, opts...)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		// Stop accepting uploads before the job queue closes.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()

		if anki != nil {
			anki.Close()
		}
		if db != nil {
			db.Close()
		}
	}()

	log.Info("starting notes2anki", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-idle
}
