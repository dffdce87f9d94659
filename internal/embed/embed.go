// Package embed adapts the embedding side of a multi-provider model
// layer into a single internal/search.Embedder. The chat/Generate surface
// the provider layer also exposes has no consumer in this module and is
// dropped entirely.
package embed

import "context"

// Provider is one named embedding backend (mock, Ollama, OpenAI, ...).
type Provider interface {
	Embed(ctx context.Context, texts []string, dim int) ([][]float32, error)
	Name() string
}

// ProviderRef is one entry of a pipe-delimited provider list, e.g.
// "ollama:nomic|openai|mock". The optional ":alias" selects an API key or
// model override for providers that support more than one.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}
