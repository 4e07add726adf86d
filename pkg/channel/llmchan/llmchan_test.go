package llmchan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/entrhq/translator/pkg/channel"
	"github.com/entrhq/translator/pkg/llm"
	"github.com/entrhq/translator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider replays scripted chunks and records every request.
type mockProvider struct {
	mu       sync.Mutex
	model    string
	replies  [][]*llm.StreamChunk
	requests [][]*types.Message
	startErr error
	hold     chan struct{}
}

func (m *mockProvider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.requests = append(m.requests, messages)

	var reply []*llm.StreamChunk
	if len(m.replies) > 0 {
		reply = m.replies[0]
		m.replies = m.replies[1:]
	}
	hold := m.hold

	out := make(chan *llm.StreamChunk)
	go func() {
		defer close(out)
		for i, c := range reply {
			if hold != nil && i == len(reply)-1 {
				select {
				case <-hold:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *mockProvider) Complete(context.Context, []*types.Message) (*types.Message, error) {
	return nil, errors.New("not used")
}
func (m *mockProvider) GetModelInfo() *types.ModelInfo { return &types.ModelInfo{Name: m.model} }
func (m *mockProvider) GetModel() string               { return m.model }
func (m *mockProvider) GetBaseURL() string             { return "" }

func (m *mockProvider) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func msg(s string) *llm.StreamChunk   { return &llm.StreamChunk{Content: s, Type: llm.ContentTypeMessage} }
func think(s string) *llm.StreamChunk { return &llm.StreamChunk{Content: s, Type: llm.ContentTypeThinking} }

func TestChannel_ObserveExcludesThinking(t *testing.T) {
	ctx := context.Background()
	p := &mockProvider{model: "chat", replies: [][]*llm.StreamChunk{{
		think("reasoning..."), msg(`[{"id":0,`), msg(`"trans":"你好"}]`), {Finished: true},
	}}}
	c := New(p)

	_, ok, err := c.Observe(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "nothing before dispatch")

	require.NoError(t, c.Dispatch(ctx, "Input JSON:\n[...]"))
	require.NoError(t, c.Wait(ctx))

	text, ok, err := c.Observe(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":0,"trans":"你好"}]`, text)
}

func TestChannel_KeepsConversation(t *testing.T) {
	ctx := context.Background()
	p := &mockProvider{model: "chat", replies: [][]*llm.StreamChunk{
		{msg("first reply")},
		{msg("second reply")},
	}}
	c := New(p)

	require.NoError(t, c.Dispatch(ctx, "preamble\n[1]"))
	require.NoError(t, c.Wait(ctx))
	require.NoError(t, c.Dispatch(ctx, "Next batch (JSON Array):\n[2]"))
	require.NoError(t, c.Wait(ctx))

	require.Equal(t, 2, p.requestCount())
	second := p.requests[1]
	require.Len(t, second, 3)
	assert.Equal(t, types.RoleUser, second[0].Role)
	assert.Equal(t, "first reply", second[1].Content)
	assert.Equal(t, types.RoleAssistant, second[1].Role)
	assert.True(t, strings.HasPrefix(second[2].Content, "Next batch"))

	assert.Len(t, c.History(), 4)

	text, _, _ := c.Observe(ctx)
	assert.Equal(t, "second reply", text, "observe shows only the latest reply")
}

func TestChannel_NewDispatchAbandonsStream(t *testing.T) {
	ctx := context.Background()
	hold := make(chan struct{})
	p := &mockProvider{model: "chat", hold: hold, replies: [][]*llm.StreamChunk{
		{msg("partial "), msg("never arrives")},
		{msg("fresh"), msg("!")},
	}}
	c := New(p)

	require.NoError(t, c.Dispatch(ctx, "one"))
	require.Eventually(t, func() bool {
		text, ok, _ := c.Observe(ctx)
		return ok && text == "partial "
	}, time.Second, time.Millisecond)

	require.NoError(t, c.Dispatch(ctx, "two"))
	close(hold)
	require.NoError(t, c.Wait(ctx))

	text, ok, err := c.Observe(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh!", text)
}

func TestChannel_DispatchError(t *testing.T) {
	ctx := context.Background()
	p := &mockProvider{startErr: errors.New("401")}
	c := New(p)

	err := c.Dispatch(ctx, "hello")
	assert.Error(t, err)
	assert.Empty(t, c.History(), "failed prompt is not kept")
}

func TestChannel_StreamErrorSurfacesInObserve(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	p := &mockProvider{replies: [][]*llm.StreamChunk{{{Error: boom}}}}
	c := New(p)

	require.NoError(t, c.Dispatch(ctx, "hello"))
	require.NoError(t, c.Wait(ctx))

	_, ok, err := c.Observe(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestChannel_ConfigureSelectsReasoner(t *testing.T) {
	ctx := context.Background()
	chat := &mockProvider{model: "deepseek-chat", replies: [][]*llm.StreamChunk{{msg("c")}}}
	reasoner := &mockProvider{model: "deepseek-reasoner", replies: [][]*llm.StreamChunk{{msg("r")}}}
	c := New(chat, WithReasoner(reasoner))

	require.NoError(t, c.Configure(ctx, channel.Features{DeepThink: true, Search: true}))
	require.NoError(t, c.Dispatch(ctx, "x"))
	require.NoError(t, c.Wait(ctx))
	assert.Equal(t, 1, reasoner.requestCount())
	assert.Equal(t, 0, chat.requestCount())

	require.NoError(t, c.Configure(ctx, channel.Features{}))
	require.NoError(t, c.Dispatch(ctx, "y"))
	require.NoError(t, c.Wait(ctx))
	assert.Equal(t, 1, chat.requestCount())
}

func TestChannel_MaxContextKeepsFirstExchange(t *testing.T) {
	c := New(&mockProvider{}, WithMaxContext(60, nil))
	c.history = []*types.Message{
		types.NewUserMessage(strings.Repeat("p", 40)),
		types.NewAssistantMessage("r0"),
		types.NewUserMessage(strings.Repeat("a", 80)),
		types.NewAssistantMessage("r1"),
		types.NewUserMessage(strings.Repeat("b", 80)),
		types.NewAssistantMessage("r2"),
		types.NewUserMessage("latest"),
	}

	got := c.contextLocked()
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, strings.Repeat("p", 40), got[0].Content)
	assert.Equal(t, "r0", got[1].Content)
	assert.Equal(t, "latest", got[len(got)-1].Content)
	assert.Less(t, len(got), len(c.history))
}

func TestChannel_Close(t *testing.T) {
	c := New(&mockProvider{})
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Dispatch(context.Background(), "x"), ErrClosed)
}
