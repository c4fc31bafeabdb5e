// Package llmutil provides shared provider wiring used by both binaries.
package llmutil

import (
	"github.com/efebarandurmaz/crucible/internal/llm"
	"github.com/efebarandurmaz/crucible/internal/llm/openai"
)

// RegisterDefaultProviders registers all built-in LLM provider constructors
// (openai and all OpenAI-compatible presets) into factory. Both cmd/crucible
// and cmd/worker call this to avoid duplicating registration logic across
// binaries.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
}
