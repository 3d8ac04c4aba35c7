package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/testcraft-io/testcraft/internal/api"
	"github.com/testcraft-io/testcraft/internal/config"
	"github.com/testcraft-io/testcraft/internal/generate"
	"github.com/testcraft-io/testcraft/internal/logbuf"
	"github.com/testcraft-io/testcraft/internal/session"
	"github.com/testcraft-io/testcraft/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (2 modes: file, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("testcraftd starting",
		"provider", cfg.Generation.Provider,
		"model", cfg.Generation.Model,
		"tracker_configured", cfg.Tracker.URL != "")

	defaults := session.Settings{
		Tracker:    cfg.Tracker,
		Generation: cfg.Generation,
	}

	server := api.NewServer(api.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, defaults, newTracker, newGenerator, logger, logBuf)

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("testcraftd stopped")
}

func newTracker(cfg config.TrackerConfig) (api.TrackerClient, error) {
	return tracker.New(tracker.Config{
		URL:              cfg.URL,
		Email:            cfg.Email,
		Token:            cfg.Token,
		AcceptanceFields: cfg.AcceptanceFields,
	})
}

func newGenerator(cfg config.GenerationConfig) (generate.Generator, error) {
	switch cfg.Provider {
	case "anthropic":
		var opts []generate.AnthropicOption
		if cfg.BaseURL != "" {
			opts = append(opts, generate.WithAnthropicBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, generate.WithAnthropicModel(cfg.Model))
		}
		return generate.NewAnthropic(cfg.APIKey, opts...), nil
	default: // "openai" or empty
		var opts []generate.OpenAIOption
		if cfg.BaseURL != "" {
			opts = append(opts, generate.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, generate.WithModel(cfg.Model))
		}
		return generate.NewOpenAI(cfg.APIKey, opts...), nil
	}
}
