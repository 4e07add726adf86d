package main

import (
	"context"
	"fmt"
	"io"

	"github.com/entrhq/translator/pkg/browser"
	"github.com/entrhq/translator/pkg/cache"
	"github.com/entrhq/translator/pkg/channel"
	"github.com/entrhq/translator/pkg/channel/browserchan"
	"github.com/entrhq/translator/pkg/channel/llmchan"
	"github.com/entrhq/translator/pkg/config"
	"github.com/entrhq/translator/pkg/kv"
	"github.com/entrhq/translator/pkg/llm/tokenizer"
	"github.com/entrhq/translator/pkg/task"
)

// chatSession names the browser session that holds the chat page.
const chatSession = "chat"

// app carries what every command needs: settings and the shared store.
type app struct {
	opts     *Options
	settings *config.Settings
	tasks    *task.Store
	cache    *cache.Engine
	out      io.Writer
}

// newApp loads settings and opens the shared store.
func newApp(opts *Options, out io.Writer) (*app, error) {
	settings, err := config.Load(opts.SettingsPath)
	if err != nil {
		return nil, err
	}
	if opts.StoreDir != "" {
		settings.StoreDir = opts.StoreDir
	}

	store, err := kv.NewFileStore(settings.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return newAppWithStore(opts, settings, store, out), nil
}

func newAppWithStore(opts *Options, settings *config.Settings, store kv.Store, out io.Writer) *app {
	return &app{
		opts:     opts,
		settings: settings,
		tasks:    task.NewStore(store),
		cache:    cache.New(store, settings.CacheOptions()...),
		out:      out,
	}
}

// openChannel connects to the agent by name.
func (a *app) openChannel(ctx context.Context, name string) (channel.Channel, error) {
	switch name {
	case channel.NameLLM:
		return a.openLLMChannel()
	case channel.NameBrowser:
		return a.openBrowserChannel(ctx)
	default:
		return nil, fmt.Errorf("unknown channel %q (must be %s or %s)", name, channel.NameLLM, channel.NameBrowser)
	}
}

func (a *app) openLLMChannel() (channel.Channel, error) {
	llmSettings := a.settings.LLM
	provider, err := config.BuildProvider(a.opts.Model, a.opts.BaseURL, a.opts.APIKey, llmSettings)
	if err != nil {
		return nil, err
	}

	var chOpts []llmchan.Option
	reasoner, err := config.BuildReasoner(a.opts.BaseURL, a.opts.APIKey, llmSettings)
	if err != nil {
		return nil, err
	}
	if reasoner != nil {
		chOpts = append(chOpts, llmchan.WithReasoner(reasoner))
	}

	if llmSettings.MaxContext > 0 {
		tok, err := tokenizer.New()
		if err != nil {
			// Without a tokenizer the conversation is sent untrimmed.
			cliLog.Warnf("Tokenizer unavailable, context will not be trimmed: %v", err)
		} else {
			chOpts = append(chOpts, llmchan.WithMaxContext(llmSettings.MaxContext, tok))
		}
	}

	cliLog.Infof("LLM channel: model=%s base_url=%s", provider.GetModel(), provider.GetBaseURL())
	return llmchan.New(provider, chOpts...), nil
}

func (a *app) openBrowserChannel(ctx context.Context) (channel.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bs := a.settings.Browser

	manager := browser.NewSessionManager()
	if err := manager.Initialize(); err != nil {
		return nil, err
	}
	session, err := manager.StartSession(chatSession, browser.SessionOptions{
		Headless:    bs.Headless,
		UserDataDir: bs.UserDataDir,
	})
	if err != nil {
		manager.Shutdown()
		return nil, err
	}
	if err := session.Navigate(bs.ChatURL, browser.NavigateOptions{WaitUntil: "domcontentloaded"}); err != nil {
		manager.Shutdown()
		return nil, err
	}

	cliLog.Infof("Browser channel: %s (profile %s)", bs.ChatURL, bs.UserDataDir)
	return browserchan.New(session,
		browserchan.WithSelectors(bs.Selectors),
		browserchan.WithCloser(manager.Shutdown),
	), nil
}
