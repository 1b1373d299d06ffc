// Command ai-jupd runs the notebook prompt server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/AnswerDotAI/ai-jup/config"
	"github.com/AnswerDotAI/ai-jup/engine"
	"github.com/AnswerDotAI/ai-jup/exec"
	"github.com/AnswerDotAI/ai-jup/logging"
	"github.com/AnswerDotAI/ai-jup/model"
	"github.com/AnswerDotAI/ai-jup/model/anthropic"
	"github.com/AnswerDotAI/ai-jup/model/openai"
	"github.com/AnswerDotAI/ai-jup/server"
	"github.com/AnswerDotAI/ai-jup/session"
	"github.com/AnswerDotAI/ai-jup/tool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ai-jupd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		Output:    os.Stdout,
		Component: "ai-jupd",
	})

	store, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	mdl, err := buildModel(cfg.Provider)
	if err != nil {
		return err
	}

	backend := exec.NewInProcessBackend()
	dispatcher := tool.NewDispatcher(backend, exec.NewLockRegistry(),
		tool.WithTimeout(cfg.Loop.DispatchTimeout),
		tool.WithLogger(logger),
	)

	loop := engine.New(mdl, dispatcher,
		engine.WithStore(store),
		engine.WithTurnTimeout(cfg.Loop.TurnTimeout),
		engine.WithLogger(logger),
	)

	srvOpts := []func(o *server.Options){server.WithLogger(logger)}
	if len(cfg.Server.AuthTokens) > 0 {
		srvOpts = append(srvOpts, server.WithAuthorizer(server.NewTokenAuthorizer(cfg.Server.AuthTokens...)))
	}
	srv := server.New(loop, srvOpts...)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "provider", cfg.Provider.Name)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildStore(cfg config.Config, logger *logging.RunLogger) (session.Store, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Info("session store", "backend", "memory")
		return session.NewInMemoryStore(), func() {}, nil
	}
	rdb, err := cfg.Redis.New()
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("session store", "backend", "redis", "ttl", cfg.Session.TTL)
	return session.NewRedisStore(rdb, cfg.Session.TTL), func() { rdb.Close() }, nil
}

func buildModel(cfg config.ProviderConfig) (model.Model, error) {
	switch cfg.Name {
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
