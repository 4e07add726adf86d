package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/entrhq/translator/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTask(now time.Time) *task.Task {
	t := task.New("https://example.com/post/1", []task.Block{
		{Key: "P:12:Firstblock", SourceText: "First block."},
		{Key: "P:13:Secondblock", SourceText: "Second block."},
		{Key: "LI:10:Thirditem", SourceText: "Third item"},
		{Key: "H1:5:Title", SourceText: "Title"},
	}, now)
	t.Blocks[0].Translation = task.Resolved("第一块。")
	t.Blocks[1].Translation = task.Failed(task.ReasonTimeout)
	t.Blocks[2].Translation = task.Failed(task.ReasonMissing)
	t.HandlerID = "tr_abc"
	t.SetHeartbeat(now.Add(-3 * time.Second))
	t.Status = task.StatusProcessing
	return t
}

func TestSnapshot(t *testing.T) {
	now := time.Now()
	s := Snapshot(sampleTask(now), now)

	assert.Equal(t, 1, s.Translated)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Pending, "error tags are never pending")
	assert.Equal(t, 4, s.Total)
	assert.False(t, s.Done)
	assert.True(t, s.Alive)
	assert.Equal(t, "tr_abc", s.Handler)
	assert.Equal(t, task.StatusProcessing, s.Phase)
	assert.Equal(t, []Failure{
		{Index: 1, Key: "P:13:Secondblock", Reason: task.ReasonTimeout},
		{Index: 2, Key: "LI:10:Thirditem", Reason: task.ReasonMissing},
	}, s.Failures)
	assert.Equal(t, "3 / 4", s.Label())
	assert.InDelta(t, 75.0, s.Percent(), 0.001)
}

func TestSnapshot_StaleHandler(t *testing.T) {
	now := time.Now()
	tk := sampleTask(now)
	tk.SetHeartbeat(now.Add(-10 * time.Second))

	s := Snapshot(tk, now)
	assert.False(t, s.Alive)
	assert.Contains(t, Render(s), "not responding")
}

func TestSnapshot_CompleteHidesLabel(t *testing.T) {
	now := time.Now()
	tk := sampleTask(now)
	tk.Blocks[3].Translation = task.Resolved("标题")

	s := Snapshot(tk, now)
	assert.True(t, s.Done)
	assert.Empty(t, s.Label())
	assert.Contains(t, Render(s), "done")
}

func TestRender(t *testing.T) {
	now := time.Now()
	out := Render(Snapshot(sampleTask(now), now))
	assert.Contains(t, out, "3 / 4")
	assert.Contains(t, out, "1 translated")
	assert.Contains(t, out, "2 failed")
	assert.Contains(t, out, "1 pending")
	assert.Contains(t, out, "handled by tr_abc")
}

func TestBar(t *testing.T) {
	assert.NotEmpty(t, Bar(50, 20))
	assert.NotPanics(t, func() { Bar(150, 5) })
	assert.NotPanics(t, func() { Bar(-1, 20) })
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher([]string{"https://example.com/*", "*://docs.*/guide/*"})
	require.NoError(t, err)

	assert.True(t, m.Match("https://example.com/post/1"))
	assert.True(t, m.Match("http://docs.golang.org/guide/intro"))
	assert.False(t, m.Match("https://other.org/"))

	all, err := NewMatcher(nil)
	require.NoError(t, err)
	assert.True(t, all.Match("anything"))

	var none *Matcher
	assert.True(t, none.Match("anything"))

	_, err = NewMatcher([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestModel_RefreshAndView(t *testing.T) {
	now := time.Now()
	load := func(context.Context) (*task.Task, error) { return sampleTask(now), nil }
	m := NewModel(load, nil, time.Second)
	m.now = func() time.Time { return now }

	msg := m.refresh()()
	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd, "next poll is scheduled")

	view := m.View()
	assert.Contains(t, view, "https://example.com/post/1")
	assert.Contains(t, view, "2 failed blocks")
	assert.Contains(t, view, "[Timeout]")
	assert.Contains(t, view, "[Trans Missing]")
}

func TestModel_NoTask(t *testing.T) {
	load := func(context.Context) (*task.Task, error) { return nil, task.ErrNoTask }
	m := NewModel(load, nil, time.Second)

	m.Update(m.refresh()())
	assert.Contains(t, m.View(), "No task")
}

func TestModel_FilteredOrigin(t *testing.T) {
	now := time.Now()
	matcher, err := NewMatcher([]string{"https://elsewhere.org/*"})
	require.NoError(t, err)
	m := NewModel(func(context.Context) (*task.Task, error) { return sampleTask(now), nil }, matcher, time.Second)

	m.Update(m.refresh()())
	assert.Contains(t, m.View(), "No task")
}

func TestModel_LoadError(t *testing.T) {
	m := NewModel(func(context.Context) (*task.Task, error) { return nil, errors.New("disk gone") }, nil, time.Second)

	m.Update(m.refresh()())
	assert.Contains(t, m.View(), "disk gone")
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(func(context.Context) (*task.Task, error) { return nil, task.ErrNoTask }, nil, time.Second)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
