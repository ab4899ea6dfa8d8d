// Package smoke runs end-to-end checks against a live SharpAI server.
// Each check exercises one area of the API through the SDK and records
// a step per call it makes.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sharpai/sharpai-go"
	"github.com/sharpai/sharpai-go/internal/sdk"
)

// Env is what every check runs against.
type Env struct {
	SDK              *sharpai.SDK
	EmbeddingsModel  string
	CompletionsModel string
	ChatModel        string
	Logger           *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Step is one API call made by a check.
type Step struct {
	Name    string        `json:"name"`
	Status  int           `json:"status"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Err     string        `json:"error,omitempty"`
}

// Result is the outcome of one check.
type Result struct {
	Name    string        `json:"name"`
	Success bool          `json:"success"`
	Steps   []Step        `json:"steps"`
	Start   time.Time     `json:"start"`
	Elapsed time.Duration `json:"elapsed"`
}

func (r Result) String() string {
	return fmt.Sprintf("%s success %v runtime %dms", r.Name, r.Success, r.Elapsed.Milliseconds())
}

// errCheck marks a step whose call succeeded but whose result did not
// hold up.
var errCheck = errors.New("check failed")

// step runs fn, records it, and clears r.Success when fn fails.
func (r *Result) step(name string, fn func() (string, error)) {
	start := time.Now()
	detail, err := fn()
	s := Step{
		Name:    name,
		Status:  http.StatusOK,
		Detail:  detail,
		Elapsed: time.Since(start),
	}
	if err != nil {
		r.Success = false
		s.Err = err.Error()
		s.Status = sdk.StatusCode(err)
		if s.Status == 0 && !errors.Is(err, errCheck) {
			s.Status = http.StatusInternalServerError
		}
	}
	r.Steps = append(r.Steps, s)
}

// Check is a named end-to-end check.
type Check struct {
	Name string
	Run  func(ctx context.Context, env *Env, r *Result)
}

// Checks returns every check in run order.
func Checks() []Check {
	return []Check{
		{"Pull Required Models", checkPullModels},
		{"Ollama Model List", checkModelList},
		{"Ollama Embeddings and Completions", checkOllamaUnary},
		{"Ollama Streaming Completions", checkOllamaStreaming},
		{"OpenAI Chat and Completion (Non-Streaming)", checkOpenAIUnary},
		{"OpenAI Streaming Completion", checkOpenAIStreamingCompletion},
		{"OpenAI Streaming Chat Completions", checkOpenAIStreamingChat},
		{"OpenAI Singular and Multiple Embeddings", checkOpenAIEmbeddings},
		{"Error Handling with Invalid Models", checkInvalidModels},
	}
}

// Run executes checks in order, all of them when none are given. A
// cancelled context stops before the next check starts.
func Run(ctx context.Context, env *Env, checks ...Check) []Result {
	if len(checks) == 0 {
		checks = Checks()
	}
	log := env.logger()

	results := make([]Result, 0, len(checks))
	for i, c := range checks {
		if ctx.Err() != nil {
			break
		}
		name := fmt.Sprintf("Test%d - %s", i+1, c.Name)
		log.Info("running check", "check", name)

		r := Result{Name: name, Success: true, Start: time.Now()}
		c.Run(ctx, env, &r)
		r.Elapsed = time.Since(r.Start)

		if r.Success {
			log.Info("check passed", "check", name, "elapsed", r.Elapsed.Round(time.Millisecond))
		} else {
			log.Warn("check failed", "check", name, "elapsed", r.Elapsed.Round(time.Millisecond))
		}
		results = append(results, r)
	}
	return results
}

// WriteSummary prints one line per result, with step detail for
// failures, followed by the totals. It reports whether every check
// passed.
func WriteSummary(w io.Writer, results []Result) bool {
	line := strings.Repeat("-", 60)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary results")
	fmt.Fprintln(w, line)

	passed, failed := 0, 0
	for _, r := range results {
		if r.Success {
			passed++
		} else {
			failed++
		}
		fmt.Fprintf(w, "| %s\n", r)
		if r.Success {
			continue
		}
		for _, s := range r.Steps {
			if s.Err == "" {
				continue
			}
			fmt.Fprintf(w, "|   %s: status %d: %s\n", s.Name, s.Status, s.Err)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d check(s) passed\n", passed)
	fmt.Fprintf(w, "%d check(s) failed\n", failed)
	if failed == 0 {
		fmt.Fprintln(w, "Checks succeeded")
	} else {
		fmt.Fprintln(w, "Checks failed")
	}
	return failed == 0
}
