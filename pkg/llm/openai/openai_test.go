package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/entrhq/translator/pkg/llm"
	"github.com/entrhq/translator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, lines []string, inspect func(body map[string]interface{})) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if inspect != nil {
			inspect(body)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
		}
	}))
}

func delta(field, content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{{"delta": map[string]string{field: content}}},
	})
	return "data: " + string(b)
}

func TestNewProvider_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewProvider("")
	assert.Error(t, err)
}

func TestNewProvider_EnvFallbacks(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_BASE_URL", "https://api.deepseek.com/v1/")

	p, err := NewProvider("", WithModel("deepseek-chat"))
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", p.GetModel())
	assert.Equal(t, "https://api.deepseek.com/v1", p.GetBaseURL())
	assert.Equal(t, "https://api.deepseek.com/v1", p.GetModelInfo().Metadata["base_url"])
}

func TestNewProvider_OptionBeatsEnv(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "https://env.example/v1")
	p, err := NewProvider("k", WithBaseURL("https://opt.example/v1"))
	require.NoError(t, err)
	assert.Equal(t, "https://opt.example/v1", p.GetBaseURL())
}

func TestStreamCompletion_SeparatesThinking(t *testing.T) {
	srv := sseServer(t, []string{
		": keep-alive",
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		delta("reasoning_content", "let me think"),
		delta("content", "<thinking>inline</thinking>"),
		delta("content", `[{"id":0,`),
		delta("content", `"trans":"你好"}]`),
		"data: [DONE]",
	}, nil)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	stream, err := p.StreamCompletion(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)

	var thinking, message strings.Builder
	var finished bool
	for c := range stream {
		require.NoError(t, c.Error)
		switch {
		case c.Finished:
			finished = true
		case c.IsThinking():
			thinking.WriteString(c.Content)
		case c.IsMessage():
			assert.Equal(t, "assistant", c.Role)
			message.WriteString(c.Content)
		}
	}

	assert.True(t, finished)
	assert.Equal(t, "let me thinkinline", thinking.String())
	assert.Equal(t, `[{"id":0,"trans":"你好"}]`, message.String())
}

func TestStreamCompletion_SendsHistoryAndTemperature(t *testing.T) {
	var got map[string]interface{}
	srv := sseServer(t, []string{delta("content", "ok"), "data: [DONE]"}, func(body map[string]interface{}) {
		got = body
	})
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL), WithModel("m"), WithTemperature(0.2))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []*types.Message{
		types.NewSystemMessage("sys"),
		types.NewUserMessage("first"),
		types.NewAssistantMessage("reply"),
		types.NewUserMessage("second"),
	})
	require.NoError(t, err)

	assert.Equal(t, "m", got["model"])
	assert.Equal(t, true, got["stream"])
	assert.InDelta(t, 0.2, got["temperature"], 1e-9)

	msgs, ok := got["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 4)
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.(map[string]interface{})["role"].(string)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestComplete_DropsThinking(t *testing.T) {
	srv := sseServer(t, []string{
		delta("content", "<thinking>hmm</thinking>"),
		delta("content", "answer"),
	}, nil)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	msg, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, "answer", msg.Content)
}

func TestStreamCompletion_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.StreamCompletion(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestConvertToOpenAIMessages(t *testing.T) {
	out := convertToOpenAIMessages([]*types.Message{
		types.NewSystemMessage("s"),
		{Role: "tool", Content: "x"},
	})
	require.Len(t, out, 2)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser, "unknown roles are sent as user")
}

var _ llm.Provider = (*Provider)(nil)
