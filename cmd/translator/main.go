// Package main provides the translator command. It snapshots pages into
// translation Tasks, runs workers that feed those Tasks to an agent, and
// reports progress.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/translator/pkg/logging"
)

const version = "0.1.0" // Version of the translator

// Options holds the global flags shared by every command.
type Options struct {
	SettingsPath string
	StoreDir     string
	APIKey       string
	BaseURL      string
	Model        string
	LogLevel     string
}

var cliLog *logging.Logger

func init() {
	var err error
	cliLog, err = logging.NewLogger("cli")
	if err != nil {
		cliLog.Warnf("Failed to initialize cli logger, using stderr fallback: %v", err)
	}
}

func main() {
	opts := parseFlags()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logging.SetLevel(level)

	// Library packages log through slog; keep those records in the session log.
	slog.SetDefault(slog.New(cliLog.Handler()))
	defer cliLog.Close()

	// Create context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, opts, args[0], args[1:]); err != nil {
		cliLog.Errorf("%s failed: %v", args[0], err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// parseFlags parses the global flags preceding the command.
func parseFlags() *Options {
	opts := &Options{}

	flag.StringVar(&opts.SettingsPath, "settings", "", "Path to the settings file (default: ~/.translator/settings.yaml)")
	flag.StringVar(&opts.StoreDir, "store", "", "Shared store directory (overrides store_dir)")
	flag.StringVar(&opts.APIKey, "api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	flag.StringVar(&opts.BaseURL, "base-url", "", "OpenAI API base URL (or set OPENAI_BASE_URL env var)")
	flag.StringVar(&opts.Model, "model", "", "LLM model to use (overrides llm.model)")
	flag.StringVar(&opts.LogLevel, "log-level", "debug", "Session log level: debug, info, warn or error")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "translator - translate web pages block by block through a chat agent\n\n")
		fmt.Fprintf(os.Stderr, "Usage: translator [options] <command> [command options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  start        Create a Task from a page (-url or -file)\n")
		fmt.Fprintf(os.Stderr, "  work         Run a worker that sends pending blocks to the agent\n")
		fmt.Fprintf(os.Stderr, "  status       Print the progress of the current Task\n")
		fmt.Fprintf(os.Stderr, "  monitor      Watch the current Task live\n")
		fmt.Fprintf(os.Stderr, "  reset        Delete the current Task\n")
		fmt.Fprintf(os.Stderr, "  clear-cache  Delete every cached translation (requires -yes)\n")
		fmt.Fprintf(os.Stderr, "  version      Show version\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY     OpenAI API key\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_BASE_URL    OpenAI API base URL (for compatible APIs)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  translator start -url https://example.com/article\n")
		fmt.Fprintf(os.Stderr, "  translator -base-url https://api.deepseek.com -model deepseek-chat work\n")
		fmt.Fprintf(os.Stderr, "  translator work -channel browser\n")
		fmt.Fprintf(os.Stderr, "  translator monitor\n")
	}

	flag.Parse()
	return opts
}

// run dispatches a command.
func run(ctx context.Context, opts *Options, command string, args []string) error {
	if command == "version" {
		fmt.Printf("translator v%s\n", version)
		return nil
	}

	cmd, ok := commands[command]
	if !ok {
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	a, err := newApp(opts, os.Stdout)
	if err != nil {
		return err
	}
	cliLog.Infof("Running %s (store %s)", command, a.settings.StoreDir)
	return cmd(ctx, a, args)
}
