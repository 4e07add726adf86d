// Package observe decides when the agent has finished answering.
//
// The agent gives no completion signal, so completion is inferred: the
// newest output is polled at a fixed interval and declared final once it has
// stopped changing for several polls in a row. A hard ceiling bounds the wait.
package observe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/translator/pkg/task"
)

// State is the observation state for one dispatched batch.
type State int

const (
	Sending State = iota
	AwaitingStability
	Stabilized
	TimedOut
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Sending:
		return "sending"
	case AwaitingStability:
		return "awaiting_stability"
	case Stabilized:
		return "stabilized"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether observation has finished.
func IsTerminal(s State) bool {
	return s == Stabilized || s == TimedOut
}

// Defaults for Config.
const (
	DefaultPollInterval = time.Second
	DefaultTimeout      = 120 * time.Second
	DefaultStableTicks  = 4
	DefaultMinLength    = 5
)

// Config tunes the stability heuristic.
type Config struct {
	// PollInterval is the delay between observations.
	PollInterval time.Duration

	// Timeout is the ceiling measured from dispatch, regardless of state.
	Timeout time.Duration

	// StableTicks is how many consecutive unchanged polls must be exceeded
	// before the output counts as final.
	StableTicks int

	// MinLength is the minimum output length, in UTF-16 code units, worth
	// considering at all.
	MinLength int

	// Markers are fragments of our own prompts. Output containing any of
	// them is the prompt echoed back, not an answer.
	Markers []string
}

// DefaultConfig returns the standard heuristic settings.
func DefaultConfig(markers ...string) Config {
	return Config{
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
		StableTicks:  DefaultStableTicks,
		MinLength:    DefaultMinLength,
		Markers:      markers,
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.StableTicks <= 0 {
		c.StableTicks = DefaultStableTicks
	}
	if c.MinLength <= 0 {
		c.MinLength = DefaultMinLength
	}
	return c
}

// Observer is the stability state machine. It is a pure function of the
// observations fed to it and the times they were made at.
type Observer struct {
	cfg      Config
	start    time.Time
	state    State
	lastText string
	stable   int
}

// NewObserver starts observing a batch dispatched at start.
func NewObserver(cfg Config, start time.Time) *Observer {
	return &Observer{cfg: cfg.withDefaults(), start: start, state: Sending}
}

// State returns the current state.
func (o *Observer) State() State {
	return o.state
}

// Text returns the most recent accepted output.
func (o *Observer) Text() string {
	return o.lastText
}

// StableTicks returns the current count of consecutive unchanged polls.
func (o *Observer) StableTicks() int {
	return o.stable
}

// Feed records one poll. ok is false when the agent has no output yet.
// Once a terminal state is reached further feeds are ignored.
func (o *Observer) Feed(text string, ok bool, now time.Time) State {
	if IsTerminal(o.state) {
		return o.state
	}
	if now.Sub(o.start) > o.cfg.Timeout {
		o.state = TimedOut
		return o.state
	}
	o.state = AwaitingStability

	if !ok || o.rejected(text) {
		return o.state
	}

	if text == o.lastText {
		o.stable++
	} else {
		o.stable = 0
		o.lastText = text
	}

	if o.stable > o.cfg.StableTicks {
		o.state = Stabilized
	}
	return o.state
}

func (o *Observer) rejected(text string) bool {
	if task.TextLength(text) < o.cfg.MinLength {
		return true
	}
	for _, m := range o.cfg.Markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Source is the observable half of the agent channel.
type Source interface {
	Observe(ctx context.Context) (string, bool, error)
}

// Result is the outcome of Wait.
type Result struct {
	State State
	Text  string
	Polls int

	// ObserveErrors counts polls where the source failed. Failed polls are
	// treated as "no output yet".
	ObserveErrors int
	LastError     error
}

// Wait polls src until the observer reaches a terminal state or ctx ends.
// now supplies the clock; pass nil for time.Now.
func Wait(ctx context.Context, src Source, cfg Config, start time.Time, now func() time.Time) (Result, error) {
	if now == nil {
		now = time.Now
	}
	obs := NewObserver(cfg, start)
	ticker := time.NewTicker(obs.cfg.PollInterval)
	defer ticker.Stop()

	var res Result
	for {
		select {
		case <-ctx.Done():
			res.State = obs.State()
			res.Text = obs.Text()
			return res, ctx.Err()
		case <-ticker.C:
		}

		text, ok, err := src.Observe(ctx)
		if err != nil {
			res.ObserveErrors++
			res.LastError = err
			ok = false
		}
		res.Polls++

		if state := obs.Feed(text, ok, now()); IsTerminal(state) {
			res.State = state
			res.Text = obs.Text()
			return res, nil
		}
	}
}
