package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/entrhq/translator/pkg/browser"
	"github.com/entrhq/translator/pkg/lease"
	"github.com/entrhq/translator/pkg/llm/tokenizer"
	"github.com/entrhq/translator/pkg/logging"
	"github.com/entrhq/translator/pkg/monitor"
	"github.com/entrhq/translator/pkg/producer"
	"github.com/entrhq/translator/pkg/reconcile"
	"github.com/entrhq/translator/pkg/task"
	"github.com/entrhq/translator/pkg/worker"
)

// monitorInterval is how often the monitor reloads the Task.
const monitorInterval = time.Second

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"start":       runStart,
	"work":        runWork,
	"status":      runStatus,
	"monitor":     runMonitor,
	"reset":       runReset,
	"clear-cache": runClearCache,
}

// runStart snapshots a page into a new Task, replacing the current one.
func runStart(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	url := fs.String("url", "", "Page to render and translate")
	file := fs.String("file", "", "Saved HTML file to translate")
	origin := fs.String("origin", "", "Origin URL recorded on the Task (default: the page URL or file path)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		fetcher producer.Fetcher
		source  string
	)
	switch {
	case *url != "" && *file != "":
		return fmt.Errorf("start takes -url or -file, not both")
	case *url != "":
		manager := browser.NewSessionManager()
		defer manager.Shutdown()
		fetcher = &producer.BrowserFetcher{Manager: manager}
		source = *url
	case *file != "":
		fetcher = producer.FileFetcher{}
		source = *file
	default:
		return fmt.Errorf("start requires -url or -file")
	}

	originURL := *origin
	if originURL == "" {
		originURL = source
		if *file != "" {
			if abs, err := filepath.Abs(source); err == nil {
				originURL = "file://" + abs
			}
		}
	}

	p := producer.New(a.tasks, a.cache)
	sum, err := p.CreateFrom(ctx, fetcher, source, originURL)
	if errors.Is(err, producer.ErrNoBlocks) {
		return fmt.Errorf("no translatable blocks found in %s", source)
	}
	if err != nil {
		return err
	}

	if sum.Title != "" {
		fmt.Fprintf(a.out, "%s\n", sum.Title)
	}
	if sum.FromCache() {
		fmt.Fprintf(a.out, "Loaded %d blocks from cache, nothing to translate\n", sum.Cached)
		return nil
	}
	fmt.Fprintf(a.out, "Task %d: %d blocks (%d from cache, %d pending)\n", sum.TaskID, sum.Blocks, sum.Cached, sum.Pending)
	return nil
}

// runWork runs a worker until interrupted.
func runWork(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("work", flag.ContinueOnError)
	channelName := fs.String("channel", a.settings.Channel, "Agent channel: llm or browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ch, err := a.openChannel(ctx, *channelName)
	if err != nil {
		return err
	}
	defer ch.Close()

	opts := []worker.Option{worker.WithEventHandler(printEvents(a.out))}
	if tok, err := tokenizer.New(); err == nil {
		opts = append(opts, worker.WithTokenizer(tok))
	} else {
		cliLog.Warnf("Tokenizer unavailable, using estimates: %v", err)
	}

	selfID := lease.NewSelfID()
	logging.SetInstance(selfID)
	slog.SetDefault(slog.New(cliLog.Handler()))

	elector := lease.NewElector(a.tasks, selfID, a.settings.LeaseOptions()...)
	w := worker.New(a.tasks, elector, ch, reconcile.New(a.tasks, a.cache), a.settings.Worker(), opts...)

	fmt.Fprintf(a.out, "Worker %s on %s channel, store %s\n", elector.SelfID(), *channelName, a.settings.StoreDir)
	return w.Run(ctx)
}

// runStatus prints a one-line summary of the current Task.
func runStatus(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	matcher, err := monitor.NewMatcher(a.settings.Match)
	if err != nil {
		return err
	}

	t, err := a.tasks.Load(ctx)
	if errors.Is(err, task.ErrNoTask) {
		fmt.Fprintln(a.out, "No task.")
		return nil
	}
	if err != nil {
		return err
	}
	if !matcher.Match(t.OriginURL) {
		fmt.Fprintf(a.out, "No task matching %v.\n", a.settings.Match)
		return nil
	}

	fmt.Fprintln(a.out, t.OriginURL)
	fmt.Fprintln(a.out, monitor.Render(monitor.Snapshot(t, time.Now())))
	return nil
}

// runMonitor shows live progress until the user quits.
func runMonitor(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	interval := fs.Duration("interval", monitorInterval, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	matcher, err := monitor.NewMatcher(a.settings.Match)
	if err != nil {
		return err
	}

	m := monitor.NewModel(a.tasks.Load, matcher, *interval)
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}

// runReset deletes the current Task. Workers go idle on their next tick.
func runReset(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.tasks.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Task cleared.")
	return nil
}

// runClearCache deletes the translation cache.
func runClearCache(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("clear-cache", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "Confirm deleting every cached translation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	n, err := a.cache.Len(ctx)
	if err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("clear-cache deletes %d cached translations; rerun with -yes to confirm", n)
	}
	if err := a.cache.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Cleared %d cached translations.\n", n)
	return nil
}
