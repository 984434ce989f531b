package providers

import (
	chromem "github.com/philippgille/chromem-go"

	"github.com/nextlevelbuilder/conductor/internal/config"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// ResolveEmbeddingFunc builds the chromem-go embedding function for the
// optional vector shadow: an OpenAI embedding model by default, or any
// OpenAI-compatible endpoint when BaseURL is set. Returns nil if vector
// search is disabled or no API key is configured.
func ResolveEmbeddingFunc(cfg config.VectorConfig) chromem.EmbeddingFunc {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil
	}
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	if cfg.BaseURL != "" {
		return chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, cfg.APIKey, model, nil)
	}
	return chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, chromem.EmbeddingModelOpenAI(model))
}
