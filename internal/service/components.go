// File: internal/service/components.go

// Package service wires the application together: database, store, model
// clients, tools, memory, orchestrator and the HTTP relay.
package service

import (
	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/agent"
	"github.com/xkilldash9x/loom/internal/memory"
	"github.com/xkilldash9x/loom/internal/relay"
	"github.com/xkilldash9x/loom/internal/store"
)

// Components holds every initialized service and centralizes lifecycle
// management.
type Components struct {
	Store  *store.Store
	LLM    schemas.LLMClient
	Memory *memory.Recaller
	Agent  *agent.Agent
	Server *relay.Server
	DBPool *pgxpool.Pool

	log *zap.Logger
}

// Shutdown releases resources in reverse dependency order. Safe to call on a
// partially initialized set.
func (c *Components) Shutdown() {
	logger := c.log
	if logger == nil {
		logger = zap.NewNop()
	}

	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM clients", zap.Error(err))
		}
	}

	if c.Memory != nil {
		if err := c.Memory.Close(); err != nil {
			logger.Warn("Error closing memory recaller", zap.Error(err))
		}
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.")
}
