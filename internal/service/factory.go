// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/internal/agent"
	"github.com/xkilldash9x/loom/internal/config"
	"github.com/xkilldash9x/loom/internal/llmclient"
	"github.com/xkilldash9x/loom/internal/memory"
	"github.com/xkilldash9x/loom/internal/relay"
	"github.com/xkilldash9x/loom/internal/store"
	"github.com/xkilldash9x/loom/internal/tools"
)

// NewComponents performs the full dependency injection sequence. On any
// failure the partially built set is shut down before returning.
func NewComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{log: logger.Named("service")}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Database pool.
	if cfg.Database.URL == "" {
		initializationErr = fmt.Errorf("database URL is not configured (hint: check LOOM_DATABASE_URL)")
		return nil, initializationErr
	}
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create database connection pool: %w", err)
		return nil, initializationErr
	}
	components.DBPool = dbPool

	// 2. Checkpoint/artifact store.
	st, err := store.New(ctx, dbPool, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize store: %w", err)
		return nil, initializationErr
	}
	if err := st.EnsureSchema(ctx); err != nil {
		initializationErr = fmt.Errorf("failed to ensure database schema: %w", err)
		return nil, initializationErr
	}
	components.Store = st

	// 3. Model clients.
	llmRouter, err := llmclient.NewRouterFromConfig(cfg.Agent, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize LLM clients: %w", err)
		return nil, initializationErr
	}
	components.LLM = llmRouter

	// 4. Tools.
	uploader := tools.NewHTTPUploader(cfg.Tools.Upload, logger)
	registry := tools.NewRegistry(logger,
		tools.NewCapturePage(cfg.Browser, uploader, logger),
		tools.NewSearchImage(cfg.Tools.Search, logger),
	)
	checker := tools.NewSyntaxChecker(cfg.Tools.Lint.Enabled)

	// 5. Long-term memory.
	agentOpts := []agent.Option{agent.WithSyntaxChecker(checker)}
	if cfg.Agent.Memory.Enabled {
		embedder, err := memory.NewGenAIEmbedder(ctx, cfg.Agent.Memory.APIKey, cfg.Agent.Memory.Model, cfg.Agent.Memory.TaskType)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize embedder: %w", err)
			return nil, initializationErr
		}
		recaller := memory.NewRecaller(dbPool, embedder, logger)
		if err := recaller.EnsureSchema(ctx); err != nil {
			initializationErr = fmt.Errorf("failed to ensure memory schema: %w", err)
			return nil, initializationErr
		}
		components.Memory = recaller
		agentOpts = append(agentOpts, agent.WithMemory(recaller))
	}

	// 6. Orchestrator.
	components.Agent = agent.New(st, llmRouter, registry, cfg.Agent, logger, agentOpts...)

	// 7. HTTP relay.
	components.Server = relay.NewServer(cfg.Server, components.Agent, logger)

	return components, nil
}
