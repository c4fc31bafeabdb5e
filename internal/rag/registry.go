package rag

import (
	"sort"
	"sync"
)

// Prompt kinds known to the pipeline. Operators may register arbitrary
// additional kinds.
const (
	KindRAG     = "rag"
	KindExtract = "extract"
)

// PromptRegistry maps a prompt kind to a template string so operators can
// tune prompts at runtime without redeploying. It lives for the process
// lifetime and is injected into the components that read it, never reached
// through a package global.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]string
}

// NewPromptRegistry creates an empty registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]string)}
}

// Set stores or replaces the template for a kind.
func (r *PromptRegistry) Set(kind, template string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[kind] = template
}

// Get returns the template for a kind and whether one is registered.
func (r *PromptRegistry) Get(kind string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	template, ok := r.prompts[kind]
	return template, ok
}

// List returns the registered kinds in sorted order.
func (r *PromptRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.prompts))
	for k := range r.prompts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Delete removes a kind. Deleting an absent kind is a no-op.
func (r *PromptRegistry) Delete(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.prompts, kind)
}

// ExtractPromptSetter is the slice of the extraction pipeline the registry
// configures. *extract.Extractor satisfies this.
type ExtractPromptSetter interface {
	SetSystemPrompt(prompt string)
}

// ApplyExtractPrompt installs the template registered under KindExtract on
// the extractor. Without one the extractor keeps its current prompt.
func (r *PromptRegistry) ApplyExtractPrompt(e ExtractPromptSetter) {
	if template, ok := r.Get(KindExtract); ok {
		e.SetSystemPrompt(template)
	}
}
