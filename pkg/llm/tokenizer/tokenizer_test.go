package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short ascii", text: "hi", want: 1},
		{name: "ascii", text: "hello world!", want: 3},
		{name: "cjk", text: "你好世界", want: 4},
		{name: "mixed", text: "abcd你好", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Estimate(tt.text))
		})
	}
}

func TestNilTokenizerFallsBack(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, Estimate("hello world!"), tok.CountTokens("hello world!"))
	assert.Equal(t, 2*perMessageOverhead+Estimate("abcd")+Estimate("efgh"), tok.CountMessagesTokens("abcd", "efgh"))
}

func TestCountTokens(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Skipf("encoding unavailable in this environment: %v", err)
	}
	assert.Positive(t, tok.CountTokens("Translate the src into Chinese."))
	assert.Zero(t, tok.CountTokens(""))
	assert.Greater(t, tok.CountMessagesTokens("a", "b"), tok.CountTokens("a")+tok.CountTokens("b"))
}
