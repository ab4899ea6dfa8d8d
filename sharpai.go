// Package sharpai is the entry point of the SharpAI client. An [SDK]
// bundles one HTTP client with the Ollama and OpenAI method sets that
// share it.
package sharpai

import (
	"github.com/sharpai/sharpai-go/internal/ollama"
	"github.com/sharpai/sharpai-go/internal/openai"
	"github.com/sharpai/sharpai-go/internal/sdk"
)

// Option configures the underlying client. See the With functions.
type Option = sdk.Option

// Re-exported client options.
var (
	WithTimeout      = sdk.WithTimeout
	WithInsecureTLS  = sdk.WithInsecureTLS
	WithHTTPClient   = sdk.WithHTTPClient
	WithLogger       = sdk.WithLogger
	WithLogRequests  = sdk.WithLogRequests
	WithLogResponses = sdk.WithLogResponses
	WithEvents       = sdk.WithEvents
)

// SDK talks to one SharpAI server through either API surface.
type SDK struct {
	*sdk.Client

	Ollama *ollama.Client
	OpenAI *openai.Client
}

// New creates an SDK for endpoint, for example "http://localhost:8000".
func New(endpoint string, opts ...Option) (*SDK, error) {
	c, err := sdk.New(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return &SDK{
		Client: c,
		Ollama: ollama.New(c),
		OpenAI: openai.New(c),
	}, nil
}
