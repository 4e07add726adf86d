// Package monitor reports Task progress the way a consumer page would see
// it: translated blocks, failed blocks and what is still pending.
package monitor

import (
	"fmt"
	"time"

	"github.com/entrhq/translator/pkg/lease"
	"github.com/entrhq/translator/pkg/task"
	"github.com/gobwas/glob"
)

// Failure is a block that settled with an error tag.
type Failure struct {
	Index  int
	Key    string
	Reason task.Reason
}

// Status is a point-in-time view of a Task.
type Status struct {
	TaskID    int64
	OriginURL string
	Phase     task.Status

	Translated int
	Failed     int
	Pending    int
	Total      int

	// Done is true when no block is pending, whatever Phase says.
	Done bool

	// Handler is the lease owner and Alive whether its heartbeat is fresh.
	Handler string
	Alive   bool

	Failures []Failure
}

// Snapshot summarizes t at now. Failed blocks count as settled, never as
// pending.
func Snapshot(t *task.Task, now time.Time) Status {
	c := t.Counts()
	s := Status{
		TaskID:     t.ID,
		OriginURL:  t.OriginURL,
		Phase:      t.Status,
		Translated: c.Resolved,
		Failed:     c.Failed,
		Pending:    c.Pending,
		Total:      c.Total,
		Done:       t.Complete(),
		Handler:    t.HandlerID,
		Alive:      t.HandlerID != "" && !lease.Stale(t, now, lease.HeartbeatTimeout),
	}
	for i, b := range t.Blocks {
		if b.Translation.IsFailed() {
			s.Failures = append(s.Failures, Failure{Index: i, Key: b.Key, Reason: b.Translation.Reason()})
		}
	}
	return s
}

// Settled returns the number of blocks that need no more work.
func (s Status) Settled() int {
	return s.Translated + s.Failed
}

// Label is the compact "settled / total" counter shown next to a page. It
// is empty once the Task is complete.
func (s Status) Label() string {
	if s.Settled() >= s.Total {
		return ""
	}
	return fmt.Sprintf("%d / %d", s.Settled(), s.Total)
}

// Percent returns settled blocks as a percentage of the total.
func (s Status) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Settled()) * 100 / float64(s.Total)
}

// Matcher selects the origin URLs a monitor reports on.
type Matcher struct {
	patterns []glob.Glob
}

// NewMatcher compiles URL patterns such as "https://example.com/*". No
// patterns match everything.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid match pattern '%s': %w", pattern, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Match reports whether url matches any pattern.
func (m *Matcher) Match(url string) bool {
	if m == nil || len(m.patterns) == 0 {
		return true
	}
	for _, p := range m.patterns {
		if p.Match(url) {
			return true
		}
	}
	return false
}
