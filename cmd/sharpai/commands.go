package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sharpai/sharpai-go/internal/journal"
	"github.com/sharpai/sharpai-go/internal/ollama"
	"github.com/sharpai/sharpai-go/internal/openai"
	"github.com/sharpai/sharpai-go/internal/smoke"
	"github.com/sharpai/sharpai-go/internal/stream"
)

// command is one server subcommand.
type command struct {
	usage   string
	help    string
	minArgs int
	journal bool // record stream sessions when the journal is configured
	run     func(ctx context.Context, a *app, args []string) error
}

// commandOrder is the help listing order.
var commandOrder = []string{
	"ping", "models", "pull", "delete",
	"generate", "chat", "stream-generate", "stream-chat", "embed",
	"openai-complete", "openai-chat", "openai-stream-complete", "openai-stream-chat", "openai-embed",
	"check", "journal",
}

var commands = map[string]command{
	"ping": {
		help: "Show the server version",
		run:  runPing,
	},
	"models": {
		help: "List local models",
		run:  runModels,
	},
	"pull": {
		usage:   "<model>",
		help:    "Pull a model, printing progress",
		minArgs: 1,
		journal: true,
		run:     runPull,
	},
	"delete": {
		usage:   "<model>",
		help:    "Delete a local model",
		minArgs: 1,
		run:     runDelete,
	},
	"generate": {
		usage:   "<model> <prompt>",
		help:    "Ollama completion",
		minArgs: 2,
		run:     runGenerate,
	},
	"chat": {
		usage:   "<model> <message>",
		help:    "Ollama chat completion",
		minArgs: 2,
		run:     runChat,
	},
	"stream-generate": {
		usage:   "<model> <prompt>",
		help:    "Streaming Ollama completion",
		minArgs: 2,
		journal: true,
		run:     runStreamGenerate,
	},
	"stream-chat": {
		usage:   "<model> <message>",
		help:    "Streaming Ollama chat completion",
		minArgs: 2,
		journal: true,
		run:     runStreamChat,
	},
	"embed": {
		usage:   "<model> <text>...",
		help:    "Ollama embeddings, one per text",
		minArgs: 2,
		run:     runEmbed,
	},
	"openai-complete": {
		usage:   "<model> <prompt>",
		help:    "OpenAI completion",
		minArgs: 2,
		run:     runOpenAIComplete,
	},
	"openai-chat": {
		usage:   "<model> <message>",
		help:    "OpenAI chat completion",
		minArgs: 2,
		run:     runOpenAIChat,
	},
	"openai-stream-complete": {
		usage:   "<model> <prompt>",
		help:    "Streaming OpenAI completion",
		minArgs: 2,
		journal: true,
		run:     runOpenAIStreamComplete,
	},
	"openai-stream-chat": {
		usage:   "<model> <message>",
		help:    "Streaming OpenAI chat completion",
		minArgs: 2,
		journal: true,
		run:     runOpenAIStreamChat,
	},
	"openai-embed": {
		usage:   "<model> <text>...",
		help:    "OpenAI embeddings, one per text",
		minArgs: 2,
		run:     runOpenAIEmbed,
	},
	"check": {
		help:    "Run the automated checks against the server",
		journal: true,
		run:     runCheck,
	},
	"journal": {
		usage: "[limit]",
		help:  "Show recorded stream sessions",
		run:   runJournal,
	},
}

// errNoRecords is returned when a stream produced nothing, which is how
// a non-success status or an empty body surfaces on a stream.
var errNoRecords = errors.New("server returned no records")

// text joins the words after the model name into a prompt.
func text(args []string) string { return strings.Join(args[1:], " ") }

func runPing(ctx context.Context, a *app, _ []string) error {
	v, err := a.sdk.Ollama.Ping(ctx)
	if err != nil {
		return err
	}
	if v == nil {
		v = &ollama.VersionResponse{}
	}
	if a.wantJSON() {
		return a.writeJSON(v)
	}
	fmt.Fprintf(a.stdout, "%s version %s\n", a.sdk.Endpoint(), v.Version)
	return nil
}

func runModels(ctx context.Context, a *app, _ []string) error {
	models, err := a.sdk.Ollama.ListLocalModels(ctx)
	if err != nil {
		return err
	}
	if a.wantJSON() {
		return a.writeJSON(models)
	}
	if len(models) == 0 {
		fmt.Fprintln(a.stdout, "no local models")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, m := range models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, m.HumanSize(), modified(m.ModifiedAt))
	}
	return tw.Flush()
}

// modified renders an RFC 3339 timestamp relative to now, or passes
// through anything it cannot parse.
func modified(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func runPull(ctx context.Context, a *app, args []string) error {
	s, err := a.sdk.Ollama.PullModel(ctx, ollama.PullRequest{Model: args[0]})
	if err != nil {
		return err
	}
	var complete bool
	err = printStream(a, s, func(p ollama.PullResponse) string {
		if p.IsComplete() {
			complete = true
		}
		if p.HasError() {
			return fmt.Sprintf("%s: error: %s\n", args[0], p.Error)
		}
		return fmt.Sprintf("%s: %s\n", args[0], p.FormattedProgress())
	})
	if err != nil {
		return err
	}
	if !complete && !a.wantJSON() {
		return fmt.Errorf("pull %s did not complete (%s)", args[0], s.Outcome())
	}
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	if err := a.sdk.Ollama.DeleteModel(ctx, ollama.DeleteRequest{Model: args[0]}); err != nil {
		return err
	}
	if a.wantJSON() {
		return a.writeJSON(map[string]string{"deleted": args[0]})
	}
	fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
	return nil
}

func runGenerate(ctx context.Context, a *app, args []string) error {
	res, err := a.sdk.Ollama.GenerateCompletion(ctx, ollama.GenerateRequest{
		Model:  args[0],
		Prompt: text(args),
	})
	if err != nil {
		return err
	}
	if res == nil {
		return errNoRecords
	}
	if a.wantJSON() {
		return a.writeJSON(res)
	}
	fmt.Fprintln(a.stdout, res.Response)
	return nil
}

func runChat(ctx context.Context, a *app, args []string) error {
	res, err := a.sdk.Ollama.GenerateChatCompletion(ctx, ollama.ChatRequest{
		Model:    args[0],
		Messages: []ollama.Message{{Role: "user", Content: text(args)}},
	})
	if err != nil {
		return err
	}
	if res == nil {
		return errNoRecords
	}
	if a.wantJSON() {
		return a.writeJSON(res)
	}
	fmt.Fprintln(a.stdout, res.Message.Content)
	return nil
}

func runStreamGenerate(ctx context.Context, a *app, args []string) error {
	s, err := a.sdk.Ollama.GenerateCompletionStream(ctx, ollama.GenerateRequest{
		Model:  args[0],
		Prompt: text(args),
	})
	if err != nil {
		return err
	}
	return printTokens(a, s, func(r ollama.GenerateResponse) string { return r.Response })
}

func runStreamChat(ctx context.Context, a *app, args []string) error {
	s, err := a.sdk.Ollama.GenerateChatCompletionStream(ctx, ollama.ChatRequest{
		Model:    args[0],
		Messages: []ollama.Message{{Role: "user", Content: text(args)}},
	})
	if err != nil {
		return err
	}
	return printTokens(a, s, func(c ollama.ChatChunk) string { return c.Message.Content })
}

func runEmbed(ctx context.Context, a *app, args []string) error {
	res, err := a.sdk.Ollama.GenerateMultipleEmbeddings(ctx, args[0], args[1:]...)
	if err != nil {
		return err
	}
	if res == nil {
		return errNoRecords
	}
	if a.wantJSON() {
		return a.writeJSON(res)
	}
	printVectors(a, args[1:], res.Embeddings)
	return nil
}

func runOpenAIComplete(ctx context.Context, a *app, args []string) error {
	res, err := a.sdk.OpenAI.GenerateCompletion(ctx, openai.CompletionRequest{
		Model:  args[0],
		Prompt: text(args),
	})
	if err != nil {
		return err
	}
	if res == nil {
		return errNoRecords
	}
	if a.wantJSON() {
		return a.writeJSON(res)
	}
	fmt.Fprintln(a.stdout, res.Text())
	return nil
}

func runOpenAIChat(ctx context.Context, a *app, args []string) error {
	res, err := a.sdk.OpenAI.GenerateChatCompletion(ctx, openai.ChatRequest{
		Model:    args[0],
		Messages: []openai.Message{{Role: "user", Content: text(args)}},
	})
	if err != nil {
		return err
	}
	if res == nil {
		return errNoRecords
	}
	if a.wantJSON() {
		return a.writeJSON(res)
	}
	fmt.Fprintln(a.stdout, res.Content())
	return nil
}

func runOpenAIStreamComplete(ctx context.Context, a *app, args []string) error {
	s, err := a.sdk.OpenAI.GenerateCompletionStream(ctx, openai.CompletionRequest{
		Model:  args[0],
		Prompt: text(args),
	})
	if err != nil {
		return err
	}
	return printTokens(a, s, openai.CompletionResponse.Text)
}

func runOpenAIStreamChat(ctx context.Context, a *app, args []string) error {
	s, err := a.sdk.OpenAI.GenerateChatCompletionStream(ctx, openai.ChatRequest{
		Model:    args[0],
		Messages: []openai.Message{{Role: "user", Content: text(args)}},
	})
	if err != nil {
		return err
	}
	return printTokens(a, s, openai.ChatChunk.Content)
}

func runOpenAIEmbed(ctx context.Context, a *app, args []string) error {
	res, err := a.sdk.OpenAI.GenerateMultipleEmbeddings(ctx, args[0], args[1:]...)
	if err != nil {
		return err
	}
	if res == nil {
		return errNoRecords
	}
	if a.wantJSON() {
		return a.writeJSON(res)
	}
	printVectors(a, args[1:], res.Vectors())
	return nil
}

// printVectors writes one line per input with the vector dimension and
// its leading values.
func printVectors(a *app, inputs []string, vectors [][]float32) {
	for i, v := range vectors {
		label := fmt.Sprintf("#%d", i)
		if i < len(inputs) {
			label = strconv.Quote(inputs[i])
		}
		head := v[:min(len(v), 4)]
		fmt.Fprintf(a.stdout, "%s: %d dims %v\n", label, len(v), head)
	}
	if len(vectors) != len(inputs) {
		a.logger.Warn("embedding count mismatch", "inputs", len(inputs), "vectors", len(vectors))
	}
}

// printTokens writes the text of each record as it arrives, then ends
// the line.
func printTokens[T any](a *app, s *stream.Stream[T], token func(T) string) error {
	err := printStream(a, s, token)
	if !a.wantJSON() && s.Stats().Records > 0 {
		fmt.Fprintln(a.stdout)
	}
	return err
}

// printStream consumes s, writing each record through render, or as one
// JSON object per line when JSON output was requested.
func printStream[T any](a *app, s *stream.Stream[T], render func(T) string) error {
	enc := json.NewEncoder(a.stdout)
	for rec, err := range s.All() {
		if err != nil {
			return err
		}
		if a.wantJSON() {
			if err := enc.Encode(rec); err != nil {
				return err
			}
			continue
		}
		fmt.Fprint(a.stdout, render(rec))
	}

	st := s.Stats()
	a.logger.Info("stream finished",
		"outcome", s.Outcome().String(),
		"records", st.Records,
		"skipped", st.Skipped,
		"bytes", humanize.IBytes(uint64(st.Bytes)),
	)
	if s.Outcome() == stream.Empty {
		return errNoRecords
	}
	return nil
}

func runCheck(ctx context.Context, a *app, _ []string) error {
	env := &smoke.Env{
		SDK:              a.sdk,
		EmbeddingsModel:  a.cfg.Check.EmbeddingsModel,
		CompletionsModel: a.cfg.Check.CompletionsModel,
		ChatModel:        a.cfg.Check.ChatModel,
		Logger:           a.logger.With("component", "check"),
	}

	results := smoke.Run(ctx, env)

	var ok bool
	if a.wantJSON() {
		if err := a.writeJSON(results); err != nil {
			return err
		}
		ok = !slices.ContainsFunc(results, func(r smoke.Result) bool { return !r.Success })
	} else {
		ok = smoke.WriteSummary(a.stdout, results)
	}
	if !ok {
		return errChecksFailed
	}
	return nil
}

// journalWindow is the period covered by the journal summary.
const journalWindow = 24 * time.Hour

// journalReport is the JSON form of the journal command.
type journalReport struct {
	Since     time.Time                 `json:"since"`
	Summary   *journalSummary           `json:"summary"`
	ByOutcome map[string]journalSummary `json:"by_outcome"`
	ByPath    map[string]journalSummary `json:"by_path"`
	Recent    []journalSession          `json:"recent"`
}

type journalSummary struct {
	Sessions  int   `json:"sessions"`
	Records   int64 `json:"records"`
	Skipped   int64 `json:"skipped"`
	Bytes     int64 `json:"bytes"`
	Failed    int   `json:"failed"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

type journalSession struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Outcome   string    `json:"outcome"`
	Records   int64     `json:"records"`
	Skipped   int64     `json:"skipped"`
	Bytes     int64     `json:"bytes"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
}

func runJournal(ctx context.Context, a *app, args []string) error {
	if !a.cfg.Journal.Enabled() {
		return errors.New("journal is not configured (set journal.path)")
	}
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	store, err := openJournal(a.cfg.Journal.Path)
	if err != nil {
		return err
	}
	a.store = store

	end := time.Now()
	start := end.Add(-journalWindow)

	total, err := store.Summary(start, end)
	if err != nil {
		return err
	}
	byOutcome, err := store.SummaryByOutcome(start, end)
	if err != nil {
		return err
	}
	byPath, err := store.SummaryByPath(start, end)
	if err != nil {
		return err
	}
	recent, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	report := journalReport{
		Since:     start.UTC(),
		Summary:   toJournalSummary(total),
		ByOutcome: make(map[string]journalSummary, len(byOutcome)),
		ByPath:    make(map[string]journalSummary, len(byPath)),
		Recent:    make([]journalSession, 0, len(recent)),
	}
	for k, v := range byOutcome {
		report.ByOutcome[k] = *toJournalSummary(v)
	}
	for k, v := range byPath {
		report.ByPath[k] = *toJournalSummary(v)
	}
	for _, s := range recent {
		report.Recent = append(report.Recent, journalSession{
			Timestamp: s.Timestamp,
			SessionID: s.SessionID,
			Source:    s.Source,
			Path:      s.Path,
			Status:    s.Status,
			Outcome:   s.Outcome,
			Records:   s.Records,
			Skipped:   s.Skipped,
			Bytes:     s.Bytes,
			ElapsedMS: s.Elapsed.Milliseconds(),
			Error:     s.Error,
		})
	}

	if a.wantJSON() {
		return a.writeJSON(report)
	}
	return writeJournal(a, report)
}

func toJournalSummary(s *journal.Summary) *journalSummary {
	return &journalSummary{
		Sessions:  s.Sessions,
		Records:   s.Records,
		Skipped:   s.Skipped,
		Bytes:     s.Bytes,
		Failed:    s.Failed,
		ElapsedMS: s.Elapsed.Milliseconds(),
	}
}

func writeJournal(a *app, r journalReport) error {
	s := r.Summary
	fmt.Fprintf(a.stdout, "Last %d hours: %d sessions, %d records, %d skipped, %s, %d failed\n",
		int(journalWindow.Hours()), s.Sessions, s.Records, s.Skipped, humanize.IBytes(uint64(s.Bytes)), s.Failed)

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, group := range []struct {
		title string
		m     map[string]journalSummary
	}{
		{"OUTCOME", r.ByOutcome},
		{"PATH", r.ByPath},
	} {
		if len(group.m) == 0 {
			continue
		}
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "%s\tSESSIONS\tRECORDS\tSKIPPED\n", group.title)
		for _, k := range slices.Sorted(maps.Keys(group.m)) {
			v := group.m[k]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", k, v.Sessions, v.Records, v.Skipped)
		}
	}

	if len(r.Recent) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "WHEN\tPATH\tSTATUS\tOUTCOME\tRECORDS\tELAPSED")
		for _, s := range r.Recent {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
				humanize.Time(s.Timestamp), s.Path, s.Status, s.Outcome, s.Records,
				(time.Duration(s.ElapsedMS) * time.Millisecond).String())
		}
	}
	return tw.Flush()
}
