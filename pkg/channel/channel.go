// Package channel defines the send/observe surface of the translation agent.
//
// A Channel is fire-and-forget: Dispatch returns once the prompt is handed
// over, and the reply is discovered only by polling Observe. Nothing here
// says when a reply is complete; that is decided by the observe package.
package channel

import (
	"context"
	"errors"
)

// ErrNotReady is returned by Dispatch when the agent surface is not usable
// yet, e.g. the chat page has no input box.
var ErrNotReady = errors.New("channel: agent not ready")

// Features are the agent toggles applied once per Task.
type Features struct {
	DeepThink bool
	Search    bool
}

// Channel is one way of reaching the agent.
type Channel interface {
	// Configure applies feature toggles. It is called once per Task before
	// the first prompt.
	Configure(ctx context.Context, f Features) error

	// Dispatch sends a prompt. It does not wait for the reply.
	Dispatch(ctx context.Context, prompt string) error

	// Observe returns the latest agent output. ok is false when there is
	// none yet.
	Observe(ctx context.Context) (text string, ok bool, err error)

	// Close releases the channel's resources.
	Close() error
}

// Resetter is implemented by channels that keep a conversation. Reset
// forgets it, so the next prompt starts a fresh exchange.
type Resetter interface {
	Reset()
}

// Name values for the supported channels.
const (
	NameLLM     = "llm"
	NameBrowser = "browser"
)
