package smoke

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sharpai/sharpai-go/internal/ollama"
	"github.com/sharpai/sharpai-go/internal/openai"
	"github.com/sharpai/sharpai-go/internal/sdk"
	"github.com/sharpai/sharpai-go/internal/stream"
)

const invalidModel = "invalid-model-name"

// generationOptions keeps check runs short and repeatable.
var generationOptions = map[string]any{
	"seed":        42,
	"num_predict": 100,
	"top_k":       20,
	"top_p":       0.9,
	"temperature": 0.8,
	"num_ctx":     1024,
}

func checkPullModels(ctx context.Context, env *Env, r *Result) {
	var models []string
	for _, m := range []string{env.EmbeddingsModel, env.CompletionsModel, env.ChatModel} {
		if m != "" && !slices.Contains(models, m) {
			models = append(models, m)
		}
	}
	for _, model := range models {
		r.step("Pull "+model, func() (string, error) {
			return pullModel(ctx, env, model)
		})
	}
}

func pullModel(ctx context.Context, env *Env, model string) (string, error) {
	s, err := env.SDK.Ollama.PullModel(ctx, ollama.PullRequest{Model: model})
	if err != nil {
		return "", err
	}
	complete := false
	for p, err := range s.All() {
		if err != nil {
			return "", err
		}
		if p.HasError() {
			env.logger().Warn("pull reported an error", "model", model, "error", p.Error)
		}
		env.logger().Debug("pull progress", "model", model, "progress", p.FormattedProgress())
		if p.IsComplete() {
			complete = true
		}
	}
	if !complete {
		return "", fmt.Errorf("%w: pull of %s did not complete (%s)", errCheck, model, s.Outcome())
	}
	return "success", nil
}

func checkModelList(ctx context.Context, env *Env, r *Result) {
	r.step("List Local Models", func() (string, error) {
		models, err := env.SDK.Ollama.ListLocalModels(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("found %d models", len(models)), nil
	})
}

func checkOllamaUnary(ctx context.Context, env *Env, r *Result) {
	r.step("Single Embedding", func() (string, error) {
		res, err := env.SDK.Ollama.GenerateEmbeddings(ctx, ollama.EmbeddingsRequest{
			Model: env.EmbeddingsModel,
			Input: sdk.Inputs("test"),
		})
		return embeddingCount(res, err, 1)
	})
	r.step("Multiple Embeddings", func() (string, error) {
		res, err := env.SDK.Ollama.GenerateMultipleEmbeddings(ctx, env.EmbeddingsModel, "hello", "world")
		return embeddingCount(res, err, 2)
	})
	r.step("Completion", func() (string, error) {
		res, err := env.SDK.Ollama.GenerateCompletion(ctx, ollama.GenerateRequest{
			Model:   env.CompletionsModel,
			Prompt:  "What is the capital of France?",
			Options: generationOptions,
		})
		if err != nil {
			return "", err
		}
		if res == nil || res.Response == "" {
			return "", fmt.Errorf("%w: empty completion", errCheck)
		}
		return excerpt(res.Response), nil
	})
	r.step("Chat Completion", func() (string, error) {
		res, err := env.SDK.Ollama.GenerateChatCompletion(ctx, ollama.ChatRequest{
			Model:    env.ChatModel,
			Messages: []ollama.Message{{Role: "user", Content: "Hello, how are you?"}},
			Options:  generationOptions,
		})
		if err != nil {
			return "", err
		}
		if res == nil || res.Message.Content == "" {
			return "", fmt.Errorf("%w: empty chat completion", errCheck)
		}
		return excerpt(res.Message.Content), nil
	})
}

func embeddingCount(res *ollama.EmbeddingsResponse, err error, want int) (string, error) {
	if err != nil {
		return "", err
	}
	if res == nil || len(res.Embeddings) != want {
		got := 0
		if res != nil {
			got = len(res.Embeddings)
		}
		return "", fmt.Errorf("%w: got %d embeddings, want %d", errCheck, got, want)
	}
	return fmt.Sprintf("%d embeddings of %d dimensions", want, len(res.Embeddings[0])), nil
}

// consume drains s, joining the text picked from each record.
func consume[T any](s *stream.Stream[T], err error, text func(T) string) (string, error) {
	if err != nil {
		return "", err
	}
	var b strings.Builder
	n := 0
	for rec, err := range s.All() {
		if err != nil {
			return "", err
		}
		n++
		b.WriteString(text(rec))
	}
	if n == 0 {
		return "", fmt.Errorf("%w: stream produced no records (%s)", errCheck, s.Outcome())
	}
	return fmt.Sprintf("%d records: %s", n, excerpt(b.String())), nil
}

func checkOllamaStreaming(ctx context.Context, env *Env, r *Result) {
	r.step("Streaming Completions", func() (string, error) {
		s, err := env.SDK.Ollama.GenerateCompletionStream(ctx, ollama.GenerateRequest{
			Model:   env.CompletionsModel,
			Prompt:  "Tell me a short story about a robot.",
			Options: generationOptions,
		})
		return consume(s, err, func(g ollama.GenerateResponse) string { return g.Response })
	})
	r.step("Streaming Chat Completions", func() (string, error) {
		s, err := env.SDK.Ollama.GenerateChatCompletionStream(ctx, ollama.ChatRequest{
			Model:    env.ChatModel,
			Messages: []ollama.Message{{Role: "user", Content: "Write a poem about artificial intelligence."}},
			Options:  generationOptions,
		})
		return consume(s, err, func(c ollama.ChatChunk) string { return c.Message.Content })
	})
}

func checkOpenAIUnary(ctx context.Context, env *Env, r *Result) {
	r.step("OpenAI Completion", func() (string, error) {
		res, err := env.SDK.OpenAI.GenerateCompletion(ctx, openai.CompletionRequest{
			Model:  env.CompletionsModel,
			Prompt: "What is the capital of France?",
		})
		if err != nil {
			return "", err
		}
		if res == nil || len(res.Choices) == 0 {
			return "", fmt.Errorf("%w: no completion choices", errCheck)
		}
		return excerpt(res.Text()), nil
	})
	r.step("OpenAI Chat Completion", func() (string, error) {
		res, err := env.SDK.OpenAI.GenerateChatCompletion(ctx, openai.ChatRequest{
			Model:    env.ChatModel,
			Messages: []openai.Message{{Role: "user", Content: "Write a short poem about artificial intelligence."}},
		})
		if err != nil {
			return "", err
		}
		if res == nil || len(res.Choices) == 0 {
			return "", fmt.Errorf("%w: no chat choices", errCheck)
		}
		return excerpt(res.Content()), nil
	})
}

func checkOpenAIStreamingCompletion(ctx context.Context, env *Env, r *Result) {
	r.step("OpenAI Streaming Completions", func() (string, error) {
		s, err := env.SDK.OpenAI.GenerateCompletionStream(ctx, openai.CompletionRequest{
			Model:  env.CompletionsModel,
			Prompt: "Write a short story about a robot.",
		})
		return consume(s, err, openai.CompletionResponse.Text)
	})
}

func checkOpenAIStreamingChat(ctx context.Context, env *Env, r *Result) {
	r.step("OpenAI Streaming Chat Completions", func() (string, error) {
		s, err := env.SDK.OpenAI.GenerateChatCompletionStream(ctx, openai.ChatRequest{
			Model:    env.ChatModel,
			Messages: []openai.Message{{Role: "user", Content: "Write a short poem about artificial intelligence."}},
		})
		return consume(s, err, openai.ChatChunk.Content)
	})
}

func checkOpenAIEmbeddings(ctx context.Context, env *Env, r *Result) {
	check := func(res *openai.EmbeddingsResponse, err error, want int) (string, error) {
		if err != nil {
			return "", err
		}
		if res == nil || len(res.Data) != want {
			return "", fmt.Errorf("%w: want %d embeddings", errCheck, want)
		}
		return fmt.Sprintf("%d embeddings", want), nil
	}
	r.step("OpenAI Single Embedding", func() (string, error) {
		res, err := env.SDK.OpenAI.GenerateEmbeddings(ctx, openai.EmbeddingsRequest{
			Model: env.EmbeddingsModel,
			Input: sdk.Inputs("This is a test sentence for generating embeddings."),
		})
		return check(res, err, 1)
	})
	r.step("OpenAI Multiple Embeddings", func() (string, error) {
		res, err := env.SDK.OpenAI.GenerateMultipleEmbeddings(ctx, env.EmbeddingsModel,
			"This is the first test sentence.",
			"This is the second test sentence.",
		)
		return check(res, err, 2)
	})
}

// checkInvalidModels passes whether the server rejects an unknown model
// or answers empty; only a transport failure counts against it.
func checkInvalidModels(ctx context.Context, env *Env, r *Result) {
	rejected := func(found bool, err error) (string, error) {
		switch {
		case sdk.StatusCode(err) != 0:
			return fmt.Sprintf("rejected with status %d", sdk.StatusCode(err)), nil
		case err != nil:
			return "", err
		case found:
			return "unexpected success", nil
		default:
			return "empty response", nil
		}
	}
	r.step("Invalid Embeddings Model", func() (string, error) {
		res, err := env.SDK.Ollama.GenerateEmbeddings(ctx, ollama.EmbeddingsRequest{Model: invalidModel, Input: sdk.Inputs("test")})
		return rejected(res != nil, err)
	})
	r.step("Invalid Completions Model", func() (string, error) {
		res, err := env.SDK.Ollama.GenerateCompletion(ctx, ollama.GenerateRequest{Model: invalidModel, Prompt: "What is the capital of France?"})
		return rejected(res != nil, err)
	})
	r.step("Invalid OpenAI Model", func() (string, error) {
		res, err := env.SDK.OpenAI.GenerateCompletion(ctx, openai.CompletionRequest{Model: invalidModel, Prompt: "What is the capital of France?"})
		return rejected(res != nil, err)
	})
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return s
}
