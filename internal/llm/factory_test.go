package llm

import (
	"context"
	"testing"
	"time"
)

type nullProvider struct{}

func (nullProvider) Name() string { return "null" }
func (nullProvider) Complete(ctx context.Context, p *Prompt, o *RequestOptions) (*Response, error) {
	return &Response{}, nil
}
func (nullProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func TestFactory_NoneProviderReturnsNil(t *testing.T) {
	f := NewFactory()
	for _, name := range []string{"", "none"} {
		p, err := f.Create(ProviderConfig{Provider: name})
		if err != nil {
			t.Fatalf("provider %q: unexpected error: %v", name, err)
		}
		if p != nil {
			t.Errorf("provider %q: expected nil provider", name)
		}
	}
}

func TestFactory_UnknownProvider(t *testing.T) {
	f := NewFactory()
	if _, err := f.Create(ProviderConfig{Provider: "does-not-exist"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestFactory_RegisteredProvider(t *testing.T) {
	f := NewFactory()
	f.Register("null", func(cfg ProviderConfig) (Provider, error) {
		return nullProvider{}, nil
	})

	p, err := f.Create(ProviderConfig{Provider: "null"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected provider")
	}
}

func TestFactory_WrapsWithRetryWhenConfigured(t *testing.T) {
	f := NewFactory()
	f.Register("null", func(cfg ProviderConfig) (Provider, error) {
		return nullProvider{}, nil
	})

	p, err := f.Create(ProviderConfig{Provider: "null", MaxRetries: 2, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*RetryProvider); !ok {
		t.Errorf("expected *RetryProvider, got %T", p)
	}
}

func TestWithRateLimit_NilProvider(t *testing.T) {
	if WithRateLimit(nil, nil) != nil {
		t.Error("expected nil for nil provider")
	}
}

func TestRateLimit_UnlimitedPassesThrough(t *testing.T) {
	p := WithRateLimit(nullProvider{}, &RateLimitConfig{})
	if _, err := p.Complete(context.Background(), &Prompt{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rl := p.(*RateLimitProvider)
	if rl.Stats().RequestsInWindow != 1 {
		t.Errorf("expected 1 request in window, got %d", rl.Stats().RequestsInWindow)
	}
}
