package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/amount"
	"github.com/sells-group/feerecon/internal/config"
	"github.com/sells-group/feerecon/internal/directory"
	"github.com/sells-group/feerecon/internal/oracle"
	"github.com/sells-group/feerecon/internal/pipeline"
	"github.com/sells-group/feerecon/internal/resilience"
	anthropicpkg "github.com/sells-group/feerecon/pkg/anthropic"
	"github.com/sells-group/feerecon/pkg/chatcompat"
)

// appEnv holds the directory store and the pipeline built on it, as needed
// by the serve and reconcile commands.
type appEnv struct {
	Store    directory.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the configuration for mode, opens and migrates the
// directory, and builds the pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate directory")
	}

	orc, err := initOracle(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	resolver := amount.NewResolver(orc,
		amount.WithBatchSize(cfg.Oracle.BatchSize),
		amount.WithConcurrency(cfg.Oracle.Concurrency),
	)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("oracle", cfg.Oracle.Provider),
		zap.Int("batch_size", cfg.Oracle.BatchSize),
		zap.Int("concurrency", cfg.Oracle.Concurrency),
	)

	return &appEnv{Store: st, Pipeline: pipeline.New(st, resolver)}, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (directory.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "feerecon.db"
		}
		return directory.NewSQLite(dsn)
	case "postgres":
		return directory.NewPostgres(ctx, sc.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// initOracle builds the LLM oracle for the configured provider. The SDK's
// own retries are disabled so the oracle's backoff is the only retry loop.
func initOracle(c *config.Config) (*oracle.LLM, error) {
	oc := c.Oracle
	llmCfg := oracle.Config{
		RequestsPerSecond: oc.RequestsPerSecond,
		Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
		Backoff:           resilience.DefaultBackoff(),
		BreakerThreshold:  oc.BreakerThreshold,
		BreakerCooldown:   time.Duration(oc.BreakerCooldown) * time.Second,
	}
	if oc.MaxAttempts > 0 {
		llmCfg.Backoff.Attempts = oc.MaxAttempts
	}

	switch oc.Provider {
	case "anthropic":
		opts := []anthropicpkg.Option{anthropicpkg.WithMaxRetries(0)}
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		client := anthropicpkg.NewClient(c.Anthropic.Key, opts...)
		completer := oracle.NewAnthropicCompleter(client, c.Anthropic.Model, oc.MaxTokens)
		return oracle.NewLLM("anthropic", completer, llmCfg), nil
	case "openai":
		client := chatcompat.NewClient(c.OpenAI.Key,
			chatcompat.WithBaseURL(c.OpenAI.BaseURL),
			chatcompat.WithModel(c.OpenAI.Model),
		)
		completer := oracle.NewChatCompleter(client, c.OpenAI.Model, int(oc.MaxTokens))
		return oracle.NewLLM("openai", completer, llmCfg), nil
	default:
		return nil, eris.Errorf("unsupported oracle provider: %s", oc.Provider)
	}
}
