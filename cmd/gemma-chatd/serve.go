package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryandam9/gemma-chatd/internal/backend"
	"github.com/ryandam9/gemma-chatd/internal/chat"
	"github.com/ryandam9/gemma-chatd/internal/config"
	"github.com/ryandam9/gemma-chatd/internal/events"
	"github.com/ryandam9/gemma-chatd/internal/server"
	"github.com/ryandam9/gemma-chatd/internal/session"
)

// shutdownTimeout bounds how long shutdown waits for in-flight
// requests before giving up.
const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var configPath string
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chatbot HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return runServer(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVarP(&listenAddr, "addr", "a", "", "listen address (overrides config)")
	return cmd
}

func runServer(cfg *config.Config) error {
	bus := events.NewBus()
	defer bus.Close()

	store := session.NewStore(session.WithEvictHook(func(id string) {
		_ = bus.Publish(&events.Event{
			Type:      events.SessionEvicted,
			SessionID: id,
			Timestamp: time.Now(),
		})
	}))

	gen := backend.NewClient(backend.Config{
		BaseURL:     cfg.BackendURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		APIKey:      cfg.BackendAPIKey,
		Timeout:     cfg.BackendTimeout,
	})

	svc := chat.New(store, gen, bus, chat.Config{
		Model:    cfg.Model,
		Preamble: cfg.SystemPreamble,
	})

	reaper := session.NewReaper(store, cfg.ReapInterval, cfg.SessionTimeout)
	reaper.Start(context.Background())
	defer reaper.Stop()

	srv := server.New(cfg.ListenAddr, svc, bus)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Printf("serving model %s via %s (session timeout %v)", cfg.Model, cfg.BackendURL, cfg.SessionTimeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Printf("received %v, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
