package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeChunks sends each part as its own flushed chunk.
func writeChunks(w http.ResponseWriter, parts ...string) {
	f := w.(http.Flusher)
	for _, p := range parts {
		io.WriteString(w, p)
		f.Flush()
	}
}

// newServer starts a fake SharpAI server and returns the config file
// pointing at it. Extra YAML is appended to the config.
func newServer(t *testing.T, extra string) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"version":"1.2.3"}`)
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"models":[{"name":"llama:latest","size":2040109465,"modified_at":"not a time"}]}`)
	})
	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w,
			`{"status":"pulling","downloaded":1073741824,"percent":0.5}`+"\n",
			`{"status":"success"}`+"\n",
		)
	})
	mux.HandleFunc("DELETE /api/delete", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream *bool `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream != nil && !*req.Stream {
			io.WriteString(w, `{"model":"m","response":"whole answer","done":true}`)
			return
		}
		writeChunks(w,
			`{"response":"Hel","done":false}`+"\n"+`{"respo`,
			`nse":"lo","done":false}`+"\n",
			`{"response":"","done":true}`+"\n",
		)
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w,
			`{"message":{"role":"assistant","content":"Hi "},"done":false}`+"\n",
			"not json\n",
			`{"response":"there","done":false}`+"\n",
			`{"done":true}`+"\n",
		)
	})
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model":"e","embeddings":[[0.1,0.2,0.3,0.4,0.5],[1,2]]}`)
	})
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w,
			`data: {"choices":[{"index":0,"delta":{"role":"assistant","content":"Good"}}]}`+"\n\n",
			`data: {"choices":[{"index":0,"delta":{"content":" day"},"finish_reason":"stop"}]}`+"\n\n",
			"data: [DONE]\n\n",
		)
	})
	mux.HandleFunc("POST /v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"model not found"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, writeConfig(t, srv.URL, extra)
}

func writeConfig(t *testing.T, endpoint, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf("endpoint: %s\nlog_level: error\n%s", endpoint, extra)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, args)
	return stdout.String(), stderr.String(), err
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		out, _, err := runCmd(t, args...)
		if err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.Contains(out, "Usage: sharpai") {
			t.Errorf("run(%v) missing usage header:\n%s", args, out)
		}
		if !strings.Contains(out, "openai-stream-chat <model> <message>") {
			t.Errorf("run(%v) missing command listing:\n%s", args, out)
		}
	}
}

func TestRun_ArgumentErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"bogus"}, "unknown command: bogus"},
		{[]string{"-x", "models"}, "unknown flag: -x"},
		{[]string{"-o", "yaml", "models"}, "unknown output format"},
		{[]string{"pull"}, "usage: sharpai pull <model>"},
		{[]string{"chat", "model-only"}, "usage: sharpai chat <model> <message>"},
		{[]string{"-config", "/nonexistent/config.yaml", "models"}, "config file not found"},
		{[]string{"-endpoint", "ftp://host", "-config", "", "models"}, "invalid"},
	}
	for _, tt := range tests {
		_, _, err := runCmd(t, tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("run(%v) error = %v, want containing %q", tt.args, err, tt.want)
		}
	}
}

func TestRun_Version(t *testing.T) {
	out, _, err := runCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "sharpai ") || !strings.Contains(out, "go_version:") {
		t.Errorf("unexpected version output:\n%s", out)
	}

	out, _, err = runCmd(t, "-o", "json", "version")
	if err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version json: %v\n%s", err, out)
	}
	if info["version"] == "" {
		t.Errorf("version json missing version: %v", info)
	}
}

func TestRun_PingAndModels(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "ping")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "version 1.2.3") {
		t.Errorf("ping output = %q", out)
	}

	out, _, err = runCmd(t, "-config", cfg, "models")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "llama:latest") || !strings.Contains(out, "1.9 GiB") {
		t.Errorf("models output:\n%s", out)
	}

	out, _, err = runCmd(t, "-config="+cfg, "-o=json", "models")
	if err != nil {
		t.Fatal(err)
	}
	var models []map[string]any
	if err := json.Unmarshal([]byte(out), &models); err != nil || len(models) != 1 {
		t.Errorf("models json = %q, err %v", out, err)
	}
}

func TestRun_EndpointOverride(t *testing.T) {
	srv, _ := newServer(t, "")
	cfg := writeConfig(t, "http://127.0.0.1:1", "")

	out, _, err := runCmd(t, "-config", cfg, "-endpoint", srv.URL+"/", "ping")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, srv.URL+" version") {
		t.Errorf("ping output = %q, want endpoint %s", out, srv.URL)
	}
}

func TestRun_Pull(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "pull", "tiny")
	if err != nil {
		t.Fatal(err)
	}
	want := "tiny: 1.0 GiB (50.0%)\ntiny: success\n"
	if out != want {
		t.Errorf("pull output = %q, want %q", out, want)
	}
}

func TestRun_Delete(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "delete", "tiny")
	if err != nil {
		t.Fatal(err)
	}
	if out != "deleted tiny\n" {
		t.Errorf("delete output = %q", out)
	}
}

func TestRun_Generate(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "generate", "m", "why", "is", "the", "sky", "blue")
	if err != nil {
		t.Fatal(err)
	}
	if out != "whole answer\n" {
		t.Errorf("generate output = %q", out)
	}
}

func TestRun_StreamGenerate(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "stream-generate", "m", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello\n" {
		t.Errorf("stream-generate output = %q, want %q", out, "Hello\n")
	}
}

func TestRun_StreamChat(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "stream-chat", "m", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hi there\n" {
		t.Errorf("stream-chat output = %q, want %q", out, "Hi there\n")
	}
}

func TestRun_StreamChatJSON(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "-o", "json", "stream-chat", "m", "hi")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d json lines, want 3:\n%s", len(lines), out)
	}
	var last struct {
		Done    bool `json:"done"`
		Message struct {
			Role string `json:"role"`
		} `json:"message"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatal(err)
	}
	if !last.Done || last.Message.Role != "assistant" {
		t.Errorf("last record = %+v", last)
	}
}

func TestRun_OpenAIStreamChat(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "openai-stream-chat", "m", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Good day\n" {
		t.Errorf("openai-stream-chat output = %q", out)
	}
}

func TestRun_StreamNonSuccess(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "openai-stream-complete", "missing", "hi")
	if !errors.Is(err, errNoRecords) {
		t.Fatalf("error = %v, want errNoRecords", err)
	}
	if out != "" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRun_UnaryNonSuccess(t *testing.T) {
	_, cfg := newServer(t, "")

	_, _, err := runCmd(t, "-config", cfg, "openai-complete", "missing", "hi")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("error = %v, want status 400", err)
	}
}

func TestRun_Embed(t *testing.T) {
	_, cfg := newServer(t, "")

	out, _, err := runCmd(t, "-config", cfg, "embed", "e", "first", "second")
	if err != nil {
		t.Fatal(err)
	}
	want := "\"first\": 5 dims [0.1 0.2 0.3 0.4]\n\"second\": 2 dims [1 2]\n"
	if out != want {
		t.Errorf("embed output = %q, want %q", out, want)
	}
}

func TestRun_JournalRecordsStreams(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db", "journal.db")
	_, cfg := newServer(t, fmt.Sprintf("journal:\n  path: %s\n", dbPath))

	if _, _, err := runCmd(t, "-config", cfg, "stream-generate", "m", "hi"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCmd(t, "-config", cfg, "stream-chat", "m", "hi"); err != nil {
		t.Fatal(err)
	}
	// Unary commands are not journaled.
	if _, _, err := runCmd(t, "-config", cfg, "generate", "m", "hi"); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCmd(t, "-config", cfg, "-o", "json", "journal")
	if err != nil {
		t.Fatal(err)
	}
	var report journalReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("journal json: %v\n%s", err, out)
	}
	if report.Summary.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", report.Summary.Sessions)
	}
	if report.Summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 (the invalid chat line)", report.Summary.Skipped)
	}
	if got := report.ByPath["/api/chat"].Records; got != 3 {
		t.Errorf("/api/chat records = %d, want 3", got)
	}
	if got := report.ByOutcome["stopped_early"].Sessions; got != 2 {
		t.Errorf("stopped_early sessions = %d, want 2", got)
	}
	if len(report.Recent) != 2 || report.Recent[0].Source != "ollama" {
		t.Errorf("recent = %+v", report.Recent)
	}

	out, _, err = runCmd(t, "-config", cfg, "journal", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 sessions") || !strings.Contains(out, "/api/generate") {
		t.Errorf("journal text output:\n%s", out)
	}
}

func TestRun_JournalNotConfigured(t *testing.T) {
	_, cfg := newServer(t, "")

	_, _, err := runCmd(t, "-config", cfg, "journal")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("error = %v, want not configured", err)
	}
}

func TestRun_CheckServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	cfg := writeConfig(t, url, "")

	out, _, err := runCmd(t, "-config", cfg, "check")
	if !errors.Is(err, errChecksFailed) {
		t.Fatalf("error = %v, want errChecksFailed", err)
	}
	if !strings.Contains(out, "Checks failed") {
		t.Errorf("summary missing:\n%s", out)
	}
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(globals{debug: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != "http://localhost:8000" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.LogLevel != "debug" || !cfg.LogRequests || !cfg.LogResponses {
		t.Errorf("debug flag not applied: %+v", cfg)
	}
}
