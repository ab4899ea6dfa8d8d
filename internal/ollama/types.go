package ollama

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sharpai/sharpai-go/internal/sdk"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// PullRequest asks the server to download a model.
type PullRequest struct {
	Model    string `json:"model"`
	Insecure bool   `json:"insecure,omitempty"`
	Stream   *bool  `json:"stream,omitempty"`
}

// PullResponse is one progress record of a model download. SharpAI
// reports Downloaded bytes and Percent as a fraction in [0, 1]; Ollama
// proper reports Completed and Total per layer digest.
type PullResponse struct {
	Status     string   `json:"status"`
	Downloaded *int64   `json:"downloaded,omitempty"`
	Percent    *float64 `json:"percent,omitempty"`
	Digest     string   `json:"digest,omitempty"`
	Total      int64    `json:"total,omitempty"`
	Completed  int64    `json:"completed,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ProgressPercentage returns progress in the range 0 to 100. ok is false
// when the record carries no progress figures.
func (p PullResponse) ProgressPercentage() (pct float64, ok bool) {
	switch {
	case p.Percent != nil:
		return *p.Percent * 100, true
	case p.Total > 0:
		return float64(p.Completed) / float64(p.Total) * 100, true
	default:
		return 0, false
	}
}

// FormattedProgress renders progress as "1.8 GiB (44.7%)", falling back
// to the status text.
func (p PullResponse) FormattedProgress() string {
	pct, ok := p.ProgressPercentage()
	switch {
	case ok && p.Downloaded != nil:
		return fmt.Sprintf("%s (%.1f%%)", humanize.IBytes(uint64(max(*p.Downloaded, 0))), pct)
	case ok && p.Total > 0:
		return fmt.Sprintf("%s / %s (%.1f%%)", humanize.IBytes(uint64(p.Completed)), humanize.IBytes(uint64(p.Total)), pct)
	case p.Status != "":
		return p.Status
	default:
		return "unknown"
	}
}

// IsComplete reports whether the status marks the end of the download.
func (p PullResponse) IsComplete() bool {
	return strings.EqualFold(p.Status, "success")
}

// HasError reports whether the server reported a failure.
func (p PullResponse) HasError() bool { return p.Error != "" }

// DeleteRequest removes a local model.
type DeleteRequest struct {
	Model string `json:"model"`
}

// tagsResponse is the object form of the /api/tags listing.
type tagsResponse struct {
	Models []LocalModel `json:"models"`
}

// LocalModel describes a model present on the server.
type LocalModel struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt string       `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// HumanSize renders Size such as "1.9 GiB".
func (m LocalModel) HumanSize() string { return humanize.IBytes(uint64(max(m.Size, 0))) }

// ModelDetails carries format and quantization metadata.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model"`
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// EmbeddingsRequest is the /api/embed request. Input holds one or more
// texts.
type EmbeddingsRequest struct {
	Model     string         `json:"model"`
	Input     sdk.Input      `json:"input"`
	Truncate  *bool          `json:"truncate,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

// EmbeddingsResponse holds one vector per input, in input order.
type EmbeddingsResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float32 `json:"embeddings"`
	TotalDuration   int64       `json:"total_duration,omitempty"`
	LoadDuration    int64       `json:"load_duration,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
}

// GenerateRequest is the /api/generate request.
type GenerateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	Suffix    string         `json:"suffix,omitempty"`
	System    string         `json:"system,omitempty"`
	Template  string         `json:"template,omitempty"`
	Context   []int          `json:"context,omitempty"`
	Stream    *bool          `json:"stream,omitempty"`
	Raw       bool           `json:"raw,omitempty"`
	Format    string         `json:"format,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

// GenerateResponse is both the non-streaming /api/generate result and
// each record of its streamed form.
type GenerateResponse struct {
	Model              string `json:"model"`
	CreatedAt          string `json:"created_at"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	DoneReason         string `json:"done_reason,omitempty"`
	Context            []int  `json:"context,omitempty"`
	TotalDuration      int64  `json:"total_duration,omitempty"`
	LoadDuration       int64  `json:"load_duration,omitempty"`
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
	EvalCount          int    `json:"eval_count,omitempty"`
	EvalDuration       int64  `json:"eval_duration,omitempty"`
}

// ChatRequest is the /api/chat request.
type ChatRequest struct {
	Model     string         `json:"model"`
	Messages  []Message      `json:"messages"`
	Stream    *bool          `json:"stream,omitempty"`
	Format    string         `json:"format,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

// ChatResponse is the non-streaming /api/chat result.
type ChatResponse struct {
	Model              string  `json:"model"`
	CreatedAt          string  `json:"created_at"`
	Message            Message `json:"message"`
	Done               bool    `json:"done"`
	DoneReason         string  `json:"done_reason,omitempty"`
	TotalDuration      int64   `json:"total_duration,omitempty"`
	LoadDuration       int64   `json:"load_duration,omitempty"`
	PromptEvalCount    int     `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64   `json:"prompt_eval_duration,omitempty"`
	EvalCount          int     `json:"eval_count,omitempty"`
	EvalDuration       int64   `json:"eval_duration,omitempty"`
}

// ChatChunk is one record of a streamed chat. Message.Role is always
// "assistant".
type ChatChunk struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
}

// chatStreamLine accepts both record shapes SharpAI emits on a streamed
// chat: the chat form with a message and the generate form with a bare
// response field.
type chatStreamLine struct {
	Model     string   `json:"model"`
	CreatedAt string   `json:"created_at"`
	Message   *Message `json:"message"`
	Response  string   `json:"response"`
	Done      bool     `json:"done"`
}

// VersionResponse is the /api/version result.
type VersionResponse struct {
	Version string `json:"version"`
}
