// Package ollama implements the Ollama-compatible API surface of a
// SharpAI server: model management, embeddings, and completions in both
// unary and streaming form.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sharpai/sharpai-go/internal/sdk"
	"github.com/sharpai/sharpai-go/internal/stream"
)

// Paths of the Ollama API.
const (
	PathPull     = "/api/pull"
	PathDelete   = "/api/delete"
	PathTags     = "/api/tags"
	PathEmbed    = "/api/embed"
	PathGenerate = "/api/generate"
	PathChat     = "/api/chat"
	PathVersion  = "/api/version"
)

// Client issues Ollama API calls through a shared sdk.Client.
type Client struct {
	c *sdk.Client
}

// New wraps c.
func New(c *sdk.Client) *Client {
	return &Client{c: c}
}

func ptr[T any](v T) *T { return &v }

// PullModel starts a model download and streams its progress. The
// stream ends after the first record whose status is "success".
func (o *Client) PullModel(ctx context.Context, req PullRequest) (*stream.Stream[PullResponse], error) {
	if req.Model == "" {
		return nil, fmt.Errorf("pull model: model name is required")
	}
	req.Stream = ptr(true)
	return sdk.PostStream(ctx, o.c, PathPull, req, sdk.StreamOptions[PullResponse]{
		Stop: PullResponse.IsComplete,
	})
}

// DeleteModel removes a local model.
func (o *Client) DeleteModel(ctx context.Context, req DeleteRequest) error {
	if req.Model == "" {
		return fmt.Errorf("delete model: model name is required")
	}
	_, err := sdk.Delete[json.RawMessage](ctx, o.c, PathDelete, req)
	return err
}

// ListLocalModels lists the models present on the server. The listing
// may arrive as a bare array or wrapped in a "models" field; an empty
// body is an empty list.
func (o *Client) ListLocalModels(ctx context.Context) ([]LocalModel, error) {
	body, err := o.c.GetRaw(ctx, PathTags)
	if err != nil {
		return nil, err
	}
	return parseModelList([]byte(body))
}

func parseModelList(body []byte) ([]LocalModel, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []LocalModel{}, nil
	}

	if body[0] == '[' {
		var models []LocalModel
		if err := json.Unmarshal(body, &models); err != nil {
			return nil, fmt.Errorf("decode model list: %w", err)
		}
		return models, nil
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	if tags.Models == nil {
		return []LocalModel{}, nil
	}
	return tags.Models, nil
}

// GenerateEmbeddings embeds the texts in req.Input.
func (o *Client) GenerateEmbeddings(ctx context.Context, req EmbeddingsRequest) (*EmbeddingsResponse, error) {
	if len(req.Input) == 0 {
		return nil, fmt.Errorf("generate embeddings: input is required")
	}
	return sdk.Post[EmbeddingsResponse](ctx, o.c, PathEmbed, req)
}

// GenerateMultipleEmbeddings embeds each text in inputs and returns one
// vector per input, in order.
func (o *Client) GenerateMultipleEmbeddings(ctx context.Context, model string, inputs ...string) (*EmbeddingsResponse, error) {
	return o.GenerateEmbeddings(ctx, EmbeddingsRequest{Model: model, Input: sdk.Inputs(inputs...)})
}

// GenerateCompletion runs a prompt to completion and returns the whole
// response at once.
func (o *Client) GenerateCompletion(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = ptr(false)
	return sdk.Post[GenerateResponse](ctx, o.c, PathGenerate, req)
}

// GenerateChatCompletion runs a chat turn and returns the whole reply.
func (o *Client) GenerateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = ptr(false)
	return sdk.Post[ChatResponse](ctx, o.c, PathChat, req)
}

// GenerateCompletionStream streams the tokens of a completion. The
// stream ends after the record marked done.
func (o *Client) GenerateCompletionStream(ctx context.Context, req GenerateRequest) (*stream.Stream[GenerateResponse], error) {
	req.Stream = ptr(true)
	return sdk.PostStream(ctx, o.c, PathGenerate, req, sdk.StreamOptions[GenerateResponse]{
		Stop: func(r GenerateResponse) bool { return r.Done },
	})
}

// GenerateChatCompletionStream streams a chat reply as ChatChunks.
func (o *Client) GenerateChatCompletionStream(ctx context.Context, req ChatRequest) (*stream.Stream[ChatChunk], error) {
	req.Stream = ptr(true)
	return sdk.PostStream(ctx, o.c, PathChat, req, sdk.StreamOptions[ChatChunk]{
		Decode: decodeChatChunk,
		Stop:   func(c ChatChunk) bool { return c.Done },
	})
}

func decodeChatChunk(line string) (*ChatChunk, error) {
	v, err := stream.JSON[chatStreamLine](line)
	if err != nil || v == nil {
		return nil, err
	}
	content := v.Response
	if v.Message != nil && v.Message.Content != "" {
		content = v.Message.Content
	}
	return &ChatChunk{
		Model:     v.Model,
		CreatedAt: v.CreatedAt,
		Message:   Message{Role: "assistant", Content: content},
		Done:      v.Done,
	}, nil
}

// Ping returns the server version, confirming the endpoint is reachable.
func (o *Client) Ping(ctx context.Context) (*VersionResponse, error) {
	return sdk.Get[VersionResponse](ctx, o.c, PathVersion)
}
