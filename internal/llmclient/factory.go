// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
)

// NewRouterFromConfig resolves the configured fast and powerful models and
// wires a tier router over them. When both tiers resolve to the same model
// entry a single client is shared.
func NewRouterFromConfig(cfg config.AgentConfig, logger *zap.Logger) (*LLMRouter, error) {
	fastCfg, err := cfg.LLM.ResolveModel(cfg.LLM.DefaultFastModel)
	if err != nil {
		return nil, fmt.Errorf("resolving fast model: %w", err)
	}
	powerfulCfg, err := cfg.LLM.ResolveModel(cfg.LLM.DefaultPowerfulModel)
	if err != nil {
		return nil, fmt.Errorf("resolving powerful model: %w", err)
	}

	fastClient, err := newClientForModel(fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fast client: %w", err)
	}

	powerfulClient := fastClient
	if powerfulCfg.Model != fastCfg.Model {
		powerfulClient, err = newClientForModel(powerfulCfg, logger)
		if err != nil {
			fastClient.Close()
			return nil, fmt.Errorf("creating powerful client: %w", err)
		}
	}

	return NewLLMRouter(map[schemas.ModelTier]schemas.LLMClient{
		schemas.TierFast:     fastClient,
		schemas.TierPowerful: powerfulClient,
	}, logger)
}

func newClientForModel(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
