package embed

import (
	"context"
	"fmt"
	"strings"

	"scancorpus/internal/config"
)

// Manager holds the ordered list of configured embedding providers and
// satisfies internal/search.Embedder by calling the first one, the same
// "first configured, mock as fallback" shape used across this pipeline's
// other pluggable-backend points.
type Manager struct {
	providers []namedProvider
	dim       int
}

type namedProvider struct {
	ref      ProviderRef
	provider Provider
}

func NewManager(cfg config.Config) (*Manager, error) {
	refs := ParseProviderList(cfg.EmbedProviders)
	m := &Manager{dim: cfg.EmbedDim}
	for _, ref := range refs {
		p, err := buildProvider(ref)
		if err != nil {
			return nil, err
		}
		m.providers = append(m.providers, namedProvider{ref: ref, provider: p})
	}
	if len(m.providers) == 0 {
		m.providers = []namedProvider{{ref: ProviderRef{Raw: "mock", Name: "mock"}, provider: NewMockProvider(cfg.EmbedDim)}}
	}
	return m, nil
}

// Embed implements internal/search.Embedder by delegating to the first
// configured provider.
func (m *Manager) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.providers[0].provider.Embed(ctx, texts, m.dim)
}

func (m *Manager) ProviderNames() []string {
	out := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		out = append(out, p.ref.Name)
	}
	return out
}

func buildProvider(ref ProviderRef) (Provider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(0), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("embed: unsupported provider %q", ref.Name)
	}
}
