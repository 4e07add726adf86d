// Package browserchan reaches the agent through its chat web page, driven by
// a Playwright session.
package browserchan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/entrhq/translator/pkg/browser"
	"github.com/entrhq/translator/pkg/channel"
)

// Page is the part of a browser session the channel needs. *browser.Session
// implements it.
type Page interface {
	Fill(selector, value string) error
	Count(selector string) (int, error)
	ClickLast(selector string) error
	LastInnerText(selector string) (string, bool, error)
	FindToggle(labels []string) (browser.Toggle, bool, error)
	ClickToggle(labels []string) error
}

// Selectors locate the chat page elements.
type Selectors struct {
	Input  string `yaml:"input"`
	Send   string `yaml:"send"`
	Output string `yaml:"output"`
}

// DefaultSelectors match the DeepSeek chat page.
func DefaultSelectors() Selectors {
	return Selectors{
		Input:  "textarea#chat-input, textarea",
		Send:   ".ds-icon-button",
		Output: ".ds-markdown",
	}
}

// Toggle labels, in the languages the chat page is served in.
var (
	DeepThinkLabels = []string{"DeepThink", "深度思考"}
	SearchLabels    = []string{"Search", "联网", "Networking"}
)

const (
	// SendSettle is the pause between filling the input and clicking send,
	// so the page registers the new value.
	SendSettle = 800 * time.Millisecond

	// ToggleSettle is the pause after each toggle click.
	ToggleSettle = 200 * time.Millisecond
)

// Channel implements channel.Channel over a chat page.
type Channel struct {
	page      Page
	selectors Selectors
	sleep     func(ctx context.Context, d time.Duration) error
	closer    func() error

	mu       sync.Mutex
	baseline int
}

// Option configures a Channel.
type Option func(*Channel)

// WithSelectors overrides the page selectors. Empty fields keep their defaults.
func WithSelectors(s Selectors) Option {
	return func(c *Channel) {
		if s.Input != "" {
			c.selectors.Input = s.Input
		}
		if s.Send != "" {
			c.selectors.Send = s.Send
		}
		if s.Output != "" {
			c.selectors.Output = s.Output
		}
	}
}

// WithCloser sets the function Close calls, e.g. to end the browser session.
func WithCloser(fn func() error) Option {
	return func(c *Channel) {
		c.closer = fn
	}
}

// WithSleep replaces the settle pause. Tests use it to avoid real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Channel) {
		c.sleep = fn
	}
}

// New creates a channel driving page.
func New(page Page, opts ...Option) *Channel {
	c := &Channel{
		page:      page,
		selectors: DefaultSelectors(),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure switches the DeepThink and Search toggles to the wanted state.
// A toggle that cannot be found is skipped.
func (c *Channel) Configure(ctx context.Context, f channel.Features) error {
	if err := c.setToggle(ctx, DeepThinkLabels, f.DeepThink); err != nil {
		return err
	}
	return c.setToggle(ctx, SearchLabels, f.Search)
}

func (c *Channel) setToggle(ctx context.Context, labels []string, want bool) error {
	t, ok, err := c.page.FindToggle(labels)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("browserchan: toggle not found", "labels", labels)
		return nil
	}
	if t.Active == want {
		return nil
	}
	if err := c.page.ClickToggle(labels); err != nil {
		return err
	}
	slog.Debug("browserchan: toggled", "label", t.Label, "on", want)
	return c.sleep(ctx, ToggleSettle)
}

// Dispatch types prompt into the chat input and clicks send.
func (c *Channel) Dispatch(ctx context.Context, prompt string) error {
	n, err := c.page.Count(c.selectors.Input)
	if err != nil {
		return err
	}
	if n == 0 {
		return channel.ErrNotReady
	}

	replies, err := c.page.Count(c.selectors.Output)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.baseline = replies
	c.mu.Unlock()

	if err := c.page.Fill(c.selectors.Input, prompt); err != nil {
		return err
	}
	if err := c.sleep(ctx, SendSettle); err != nil {
		return err
	}
	return c.page.ClickLast(c.selectors.Send)
}

// Observe returns the text of the newest reply. Replies that were already
// on the page when the last prompt was dispatched are not reported.
func (c *Channel) Observe(_ context.Context) (string, bool, error) {
	n, err := c.page.Count(c.selectors.Output)
	if err != nil {
		return "", false, err
	}
	c.mu.Lock()
	baseline := c.baseline
	c.mu.Unlock()
	if n <= baseline {
		return "", false, nil
	}
	return c.page.LastInnerText(c.selectors.Output)
}

// Close releases the page.
func (c *Channel) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
