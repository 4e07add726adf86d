// Package tokenizer estimates prompt sizes in model tokens.
package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used for estimates.
const DefaultEncoding = "cl100k_base"

// perMessageOverhead approximates the role and separator tokens the chat
// format adds around every message.
const perMessageOverhead = 4

// Tokenizer counts tokens with a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the default encoding. Loading may need network access the first
// time; callers should fall back to Estimate when it fails.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %s: %w", DefaultEncoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text. A nil Tokenizer falls
// back to Estimate.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.enc == nil {
		return Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessagesTokens returns the token count of a conversation, including
// a small per-message overhead.
func (t *Tokenizer) CountMessagesTokens(contents ...string) int {
	total := 0
	for _, c := range contents {
		total += t.CountTokens(c) + perMessageOverhead
	}
	return total
}

// Estimate is a rough count used without an encoding: one token per four
// bytes of ASCII, and one per character otherwise, which is closer for CJK.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	ascii, other := 0, 0
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+3)/4 + other
}
