package embedding

import (
	"fmt"

	"github.com/kiranshivaraju/confsight/internal/config"
)

// NewProvider constructs the appropriate embedding provider based on config.
// Called once at server startup; the returned provider is the process-wide
// singleton.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed":
		return NewFastEmbedProvider(cfg.FastEmbed)
	case "ollama":
		return NewOllamaProvider(cfg.Ollama), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: must be one of fastembed, ollama", cfg.Provider)
	}
}
