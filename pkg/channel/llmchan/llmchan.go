// Package llmchan reaches the agent through an LLM chat completions API.
//
// The channel keeps the whole conversation so "Next batch" prompts are
// answered with the preamble of the first prompt still in context. Each
// dispatch streams the reply into a buffer in the background; Observe
// returns what has arrived so far, without thinking content.
package llmchan

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/entrhq/translator/pkg/channel"
	"github.com/entrhq/translator/pkg/llm"
	"github.com/entrhq/translator/pkg/llm/tokenizer"
	"github.com/entrhq/translator/pkg/types"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("llmchan: channel closed")

// Channel implements channel.Channel over an llm.Provider.
type Channel struct {
	chat     llm.Provider
	reasoner llm.Provider
	active   llm.Provider

	tok        *tokenizer.Tokenizer
	maxContext int

	mu        sync.Mutex
	history   []*types.Message
	reply     strings.Builder
	thinking  int
	streamErr error
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithReasoner sets the provider used when DeepThink is enabled, e.g. the
// same endpoint with a reasoning model.
func WithReasoner(p llm.Provider) Option {
	return func(c *Channel) {
		c.reasoner = p
	}
}

// WithMaxContext bounds the conversation sent with each prompt, in tokens.
// The first exchange is always kept because it carries the instructions.
// Zero disables trimming.
func WithMaxContext(tokens int, tok *tokenizer.Tokenizer) Option {
	return func(c *Channel) {
		c.maxContext = tokens
		c.tok = tok
	}
}

// New creates a channel that talks to p.
func New(p llm.Provider, opts ...Option) *Channel {
	c := &Channel{chat: p, active: p}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure selects the provider for the Task. Search has no API
// equivalent and is ignored.
func (c *Channel) Configure(_ context.Context, f channel.Features) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = c.chat
	if f.DeepThink && c.reasoner != nil {
		c.active = c.reasoner
	}
	if f.Search {
		slog.Warn("llmchan: web search is not available over the API; ignoring")
	}
	slog.Debug("llmchan: configured", "model", c.active.GetModel(), "deep_think", f.DeepThink)
	return nil
}

// Dispatch appends prompt to the conversation and starts streaming the
// reply. A reply still streaming from an earlier dispatch is abandoned.
func (c *Channel) Dispatch(ctx context.Context, prompt string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.abortLocked()

	c.history = append(c.history, types.NewUserMessage(prompt))
	messages := c.contextLocked()
	c.reply.Reset()
	c.thinking = 0
	c.streamErr = nil
	provider := c.active
	c.mu.Unlock()

	// The stream outlives the caller's tick; Close or the next Dispatch
	// stops it.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := provider.StreamCompletion(streamCtx, messages)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.history = c.history[:len(c.history)-1]
		c.mu.Unlock()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.consume(stream, done)
	return nil
}

func (c *Channel) consume(stream <-chan *llm.StreamChunk, done chan struct{}) {
	defer close(done)
	for chunk := range stream {
		c.mu.Lock()
		if c.done != done {
			c.mu.Unlock()
			continue
		}
		switch {
		case chunk.IsError():
			c.streamErr = chunk.Error
		case chunk.IsThinking():
			c.thinking += len(chunk.Content)
		case chunk.IsMessage():
			c.reply.WriteString(chunk.Content)
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != done {
		return
	}
	if c.reply.Len() > 0 {
		c.history = append(c.history, types.NewAssistantMessage(c.reply.String()))
	}
	slog.Debug("llmchan: reply complete", "chars", c.reply.Len(), "thinking_chars", c.thinking, "error", c.streamErr)
	c.cancel = nil
}

// Observe returns the reply text received so far.
func (c *Channel) Observe(_ context.Context) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reply.Len() == 0 {
		return "", false, c.streamErr
	}
	return c.reply.String(), true, nil
}

// History returns a copy of the conversation so far.
func (c *Channel) History() []*types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Reset forgets the conversation. The next prompt must carry the preamble.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked()
	c.history = nil
	c.reply.Reset()
	c.streamErr = nil
}

// Wait blocks until the current stream, if any, has ended.
func (c *Channel) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops any streaming reply.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked()
	c.closed = true
	return nil
}

func (c *Channel) abortLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.done = nil
}

// contextLocked returns the messages to send, dropping the oldest
// exchanges after the first when the conversation exceeds maxContext.
func (c *Channel) contextLocked() []*types.Message {
	msgs := make([]*types.Message, len(c.history))
	copy(msgs, c.history)
	if c.maxContext <= 0 || len(msgs) <= 3 {
		return msgs
	}

	size := func(ms []*types.Message) int {
		contents := make([]string, len(ms))
		for i, m := range ms {
			contents[i] = m.Content
		}
		return c.tok.CountMessagesTokens(contents...)
	}

	head, tail := msgs[:2], msgs[2:]
	for len(tail) > 1 && size(head)+size(tail) > c.maxContext {
		drop := 2
		if len(tail) <= 2 {
			drop = len(tail) - 1
		}
		tail = tail[drop:]
	}
	out := make([]*types.Message, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}

var (
	_ channel.Channel  = (*Channel)(nil)
	_ channel.Resetter = (*Channel)(nil)
)
