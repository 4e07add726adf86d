// Package parser separates reasoning from answer text in LLM streams.
package parser

import (
	"strings"

	"github.com/entrhq/translator/pkg/llm"
)

// thinkingTags maps each recognised tag to whether it opens a thinking span.
// Reasoning models use either spelling.
var thinkingTags = map[string]bool{
	"<thinking>":  true,
	"</thinking>": false,
	"<think>":     true,
	"</think>":    false,
}

func couldBeTag(s string) bool {
	for tag := range thinkingTags {
		if strings.HasPrefix(tag, s) {
			return true
		}
	}
	return false
}

// ThinkingParser splits streamed content into thinking and message text.
// Tags may be split across chunks; a partial tag is held back until it
// either completes or can no longer be a thinking tag, so a bare '<' in
// content (e.g. "x < 5") is passed through unchanged.
type ThinkingParser struct {
	pending    strings.Builder
	inThinking bool
}

// NewThinkingParser creates a new thinking parser.
func NewThinkingParser() *ThinkingParser {
	return &ThinkingParser{}
}

// Parse consumes a content chunk. It returns at most one thinking chunk and
// one message chunk holding the text of each kind found in content.
func (p *ThinkingParser) Parse(content string) (thinkingChunk, messageChunk *llm.StreamChunk) {
	var thinking, message strings.Builder
	emit := func(s string) {
		if p.inThinking {
			thinking.WriteString(s)
		} else {
			message.WriteString(s)
		}
	}

	for _, ch := range content {
		if ch == '<' && p.pending.Len() > 0 {
			emit(p.pending.String())
			p.pending.Reset()
		}
		if ch != '<' && p.pending.Len() == 0 {
			emit(string(ch))
			continue
		}

		p.pending.WriteRune(ch)
		s := p.pending.String()
		if opens, ok := thinkingTags[s]; ok {
			p.inThinking = opens
			p.pending.Reset()
			continue
		}
		if !couldBeTag(s) {
			emit(s)
			p.pending.Reset()
		}
	}

	return chunkOf(thinking.String(), llm.ContentTypeThinking), chunkOf(message.String(), llm.ContentTypeMessage)
}

// Flush returns any held-back partial tag as content. Call it at the end of
// a stream.
func (p *ThinkingParser) Flush() (thinkingChunk, messageChunk *llm.StreamChunk) {
	if p.pending.Len() == 0 {
		return nil, nil
	}
	s := p.pending.String()
	p.pending.Reset()
	if p.inThinking {
		return chunkOf(s, llm.ContentTypeThinking), nil
	}
	return nil, chunkOf(s, llm.ContentTypeMessage)
}

// IsInThinking returns true if currently inside a thinking span.
func (p *ThinkingParser) IsInThinking() bool {
	return p.inThinking
}

// Reset resets the parser state for a new stream.
func (p *ThinkingParser) Reset() {
	p.pending.Reset()
	p.inThinking = false
}

func chunkOf(text string, t llm.ContentType) *llm.StreamChunk {
	if text == "" {
		return nil
	}
	return &llm.StreamChunk{Content: text, Type: t}
}
