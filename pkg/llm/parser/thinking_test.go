package parser

import (
	"strings"
	"testing"
)

func collect(p *ThinkingParser, chunks ...string) (thinking, message string) {
	var tb, mb strings.Builder
	for _, c := range chunks {
		th, msg := p.Parse(c)
		if th != nil {
			tb.WriteString(th.Content)
		}
		if msg != nil {
			mb.WriteString(msg.Content)
		}
	}
	th, msg := p.Flush()
	if th != nil {
		tb.WriteString(th.Content)
	}
	if msg != nil {
		mb.WriteString(msg.Content)
	}
	return tb.String(), mb.String()
}

func TestThinkingParser(t *testing.T) {
	tests := []struct {
		name         string
		chunks       []string
		wantThinking string
		wantMessage  string
	}{
		{
			name:        "plain message",
			chunks:      []string{`[{"id":0,"trans":"你好"}]`},
			wantMessage: `[{"id":0,"trans":"你好"}]`,
		},
		{
			name:         "thinking then answer",
			chunks:       []string{"<thinking>", "This is thinking", "</thinking>", "This is a message"},
			wantThinking: "This is thinking",
			wantMessage:  "This is a message",
		},
		{
			name:         "short think tag",
			chunks:       []string{"<think>plan</think>[1]"},
			wantThinking: "plan",
			wantMessage:  "[1]",
		},
		{
			name:         "tag split across chunks",
			chunks:       []string{"<thi", "nking>dra", "ft</thi", "nking>", "done"},
			wantThinking: "draft",
			wantMessage:  "done",
		},
		{
			name:         "angle brackets inside thinking",
			chunks:       []string{"<thinking>", "if x>3 {", " for i<10; i++ {", "</thinking>", "\n\nanswer"},
			wantThinking: "if x>3 { for i<10; i++ {",
			wantMessage:  "\n\nanswer",
		},
		{
			name:        "html in message is kept",
			chunks:      []string{`[{"id":1,"trans":"<b>粗体</b>"}]`},
			wantMessage: `[{"id":1,"trans":"<b>粗体</b>"}]`,
		},
		{
			name:        "dangling less-than flushed",
			chunks:      []string{"x <", "<t"},
			wantMessage: "x <<t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thinking, message := collect(NewThinkingParser(), tt.chunks...)
			if thinking != tt.wantThinking {
				t.Errorf("thinking = %q, want %q", thinking, tt.wantThinking)
			}
			if message != tt.wantMessage {
				t.Errorf("message = %q, want %q", message, tt.wantMessage)
			}
		})
	}
}

func TestThinkingParser_StateAndReset(t *testing.T) {
	p := NewThinkingParser()
	p.Parse("<thinking>still going")
	if !p.IsInThinking() {
		t.Fatal("expected to be in thinking mode")
	}

	p.Reset()
	if p.IsInThinking() {
		t.Error("Reset should leave thinking mode")
	}
	_, msg := p.Parse("fresh")
	if msg == nil || msg.Content != "fresh" {
		t.Errorf("message after reset = %+v", msg)
	}
}

func TestThinkingParser_ChunkTypes(t *testing.T) {
	p := NewThinkingParser()
	th, msg := p.Parse("<think>a</think>b")
	if th == nil || !th.IsThinking() {
		t.Errorf("thinking chunk = %+v", th)
	}
	if msg == nil || !msg.IsMessage() {
		t.Errorf("message chunk = %+v", msg)
	}
}
