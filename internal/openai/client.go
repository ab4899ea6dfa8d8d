// Package openai implements the OpenAI-compatible API surface of a
// SharpAI server. Streamed responses use the event-stream framing: each
// record line is prefixed with "data: " and the stream closes with a
// "data: [DONE]" line.
package openai

import (
	"context"
	"fmt"

	"github.com/sharpai/sharpai-go/internal/sdk"
	"github.com/sharpai/sharpai-go/internal/stream"
)

// Paths of the OpenAI API.
const (
	PathEmbeddings      = "/v1/embeddings"
	PathCompletions     = "/v1/completions"
	PathChatCompletions = "/v1/chat/completions"
)

// DoneMarker is the payload of the final event-stream line.
const DoneMarker = "[DONE]"

// Client issues OpenAI API calls through a shared sdk.Client.
type Client struct {
	c *sdk.Client
}

// New wraps c.
func New(c *sdk.Client) *Client {
	return &Client{c: c}
}

// GenerateEmbeddings embeds the texts in req.Input.
func (o *Client) GenerateEmbeddings(ctx context.Context, req EmbeddingsRequest) (*EmbeddingsResponse, error) {
	if len(req.Input) == 0 {
		return nil, fmt.Errorf("generate embeddings: input is required")
	}
	return sdk.Post[EmbeddingsResponse](ctx, o.c, PathEmbeddings, req)
}

// GenerateMultipleEmbeddings embeds every text in inputs.
func (o *Client) GenerateMultipleEmbeddings(ctx context.Context, model string, inputs ...string) (*EmbeddingsResponse, error) {
	return o.GenerateEmbeddings(ctx, EmbeddingsRequest{Model: model, Input: sdk.Inputs(inputs...)})
}

// GenerateCompletion returns a whole completion.
func (o *Client) GenerateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	req.Stream = false
	return sdk.Post[CompletionResponse](ctx, o.c, PathCompletions, req)
}

// GenerateCompletionStream streams a completion as partial records.
func (o *Client) GenerateCompletionStream(ctx context.Context, req CompletionRequest) (*stream.Stream[CompletionResponse], error) {
	req.Stream = true
	return sdk.PostStream(ctx, o.c, PathCompletions, req, sdk.StreamOptions[CompletionResponse]{
		Transform: stream.EventStream,
		EndMarker: DoneMarker,
	})
}

// GenerateChatCompletion returns a whole chat reply.
func (o *Client) GenerateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	return sdk.Post[ChatResponse](ctx, o.c, PathChatCompletions, req)
}

// GenerateChatCompletionStream streams a chat reply as deltas.
func (o *Client) GenerateChatCompletionStream(ctx context.Context, req ChatRequest) (*stream.Stream[ChatChunk], error) {
	req.Stream = true
	return sdk.PostStream(ctx, o.c, PathChatCompletions, req, sdk.StreamOptions[ChatChunk]{
		Transform: stream.EventStream,
		EndMarker: DoneMarker,
	})
}
