// Sharpai is a command line client for a SharpAI server.
//
// It drives both API surfaces the server exposes, the Ollama API under
// /api and the OpenAI API under /v1, through the SDK in this module.
// Streaming commands print records as they arrive. Configuration is
// optional; when no file is found the built-in defaults are used (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	sharpai models                         List local models
//	sharpai pull <model>                   Pull a model, printing progress
//	sharpai stream-chat <model> <message>  Stream a chat completion
//	sharpai check                          Run the automated checks
//	sharpai init [dir]                     Write a default config file
//	sharpai -o json version                Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sharpai/sharpai-go/internal/buildinfo"
	"github.com/sharpai/sharpai-go/internal/config"
)

// main builds the OS-level environment and delegates to [run]. Ctrl-C
// cancels the context, which ends any stream in progress.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		stop()
		os.Exit(1)
	}
}

// globals holds the flags accepted before the command name.
type globals struct {
	configPath string
	outputFmt  string // "text" (default) or "json"
	endpoint   string // overrides the config file endpoint
	debug      bool   // debug logging plus request and response logging
}

// run is the real entry point for the sharpai command. Command output
// goes to stdout; structured logs and fatal errors go to stderr. args is
// os.Args[1:], parsed by hand so run can be called concurrently from
// tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var g globals
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		if command != "" {
			cmdArgs = append(cmdArgs, args[i])
			continue
		}
		switch {
		case args[i] == "-config" && i+1 < len(args):
			g.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			g.configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			g.outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			g.outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			g.outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-endpoint" && i+1 < len(args):
			g.endpoint = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-endpoint="):
			g.endpoint = strings.TrimPrefix(args[i], "-endpoint=")
		case args[i] == "-debug":
			g.debug = true
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if g.outputFmt == "" {
		g.outputFmt = "text"
	}
	if g.outputFmt != "text" && g.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", g.outputFmt)
	}

	switch command {
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, g.outputFmt)
	case "":
		return printUsage(stdout)
	}

	cmd, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown command: %s", command)
	}
	if len(cmdArgs) < cmd.minArgs {
		return fmt.Errorf("usage: sharpai %s %s", command, cmd.usage)
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, stdout, stderr, g.outputFmt, cfg, cmd.journal)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, a, cmdArgs)
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "SharpAI - command line client for a SharpAI server")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: sharpai [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Fprintf(w, "  %-24s %s\n", strings.TrimSpace(name+" "+cmd.usage), cmd.help)
	}
	fmt.Fprintf(w, "  %-24s %s\n", "init [dir]", "Write a default config.yaml (default: .)")
	fmt.Fprintf(w, "  %-24s %s\n", "version", "Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -endpoint <url>   SharpAI server URL (overrides config)")
	fmt.Fprintln(w, "  -debug            Debug logging with request and response bodies")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintln(w, "Built-in defaults apply when no file is found.")
	return nil
}

// loadConfig resolves the configuration for one invocation. An explicit
// -config path must exist. Without one, the first file on the search
// path is used, falling back to [config.Default]. Flag overrides are
// applied last and the result is validated again.
func loadConfig(g globals) (*config.Config, error) {
	cfg := config.Default()

	path, err := config.FindConfig(g.configPath)
	switch {
	case err == nil:
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	case g.configPath != "":
		return nil, err
	}

	if g.endpoint != "" {
		cfg.Endpoint = strings.TrimRight(strings.TrimSpace(g.endpoint), "/")
	}
	if g.debug {
		if lvl, _ := config.ParseLogLevel(cfg.LogLevel); lvl > config.LevelTrace {
			cfg.LogLevel = "debug"
		}
		cfg.LogRequests = true
		cfg.LogResponses = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// errChecksFailed is returned by the check command when any check fails.
var errChecksFailed = errors.New("one or more checks failed")
