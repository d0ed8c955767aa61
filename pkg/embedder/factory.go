package embedder

import (
	"fmt"
	"strings"
	"sync"
)

// Config is the backend configuration shared by every model an embedder
// Registry builds. Only one of the backend blocks needs to be populated;
// Registry.Resolve swaps in the per-EmbeddingDefinition model name.
type Config struct {
	// Ollama configuration
	OllamaURL string

	// OpenAI (or OpenAI-compatible) configuration
	OpenAIKey     string
	OpenAIBaseURL string
}

// NewEmbedderForModel builds a single-model Embedder from cfg.
// Priority: Ollama (if a server URL is configured) then OpenAI (if an API
// key is configured), self-hosted before hosted, mirroring the teacher's
// local-before-remote preference.
func NewEmbedderForModel(cfg *Config, modelID string) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder configuration is required")
	}
	if modelID == "" {
		return nil, fmt.Errorf("model id is required")
	}

	if cfg.OllamaURL != "" {
		return NewOllamaEmbedder(cfg.OllamaURL, modelID)
	}

	if cfg.OpenAIKey != "" {
		return NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, modelID)
	}

	return nil, fmt.Errorf("no embedder backend configured: set an Ollama URL or an OpenAI API key")
}

// ValidateConfig checks that at least one backend is usable.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if cfg.OllamaURL == "" && cfg.OpenAIKey == "" {
		return fmt.Errorf("at least one embedder backend must be configured (Ollama or OpenAI)")
	}
	if cfg.OllamaURL != "" && !isValidURL(cfg.OllamaURL) {
		return fmt.Errorf("invalid ollama URL: %s", cfg.OllamaURL)
	}
	if cfg.OpenAIBaseURL != "" && !isValidURL(cfg.OpenAIBaseURL) {
		return fmt.Errorf("invalid openai base URL: %s", cfg.OpenAIBaseURL)
	}
	return nil
}

func isValidURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Registry builds and caches an Embedder per embedding_model_id. The
// EmbeddingCoordinator holds one Registry and resolves a definition's
// model lazily on first use, so adding a new EmbeddingDefinition never
// requires restarting the process.
type Registry struct {
	cfg *Config

	mu       sync.RWMutex
	embedder map[string]Embedder
}

// NewRegistry creates an empty model registry backed by cfg.
func NewRegistry(cfg *Config) *Registry {
	return &Registry{
		cfg:      cfg,
		embedder: make(map[string]Embedder),
	}
}

// Resolve returns the cached Embedder for modelID, building it on first use.
func (r *Registry) Resolve(modelID string) (Embedder, error) {
	r.mu.RLock()
	e, ok := r.embedder[modelID]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.embedder[modelID]; ok {
		return e, nil
	}

	e, err := NewEmbedderForModel(r.cfg, modelID)
	if err != nil {
		return nil, err
	}
	r.embedder[modelID] = e
	return e, nil
}
