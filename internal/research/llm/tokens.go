package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func tokenizer() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens returns the cl100k_base token count of text, or a character
// heuristic when the encoding is unavailable.
func CountTokens(text string) int {
	if enc := tokenizer(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// TruncateToTokens cuts text to roughly maxTokens tokens.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if enc := tokenizer(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return enc.Decode(tokens[:maxTokens]) + "..."
	}
	runes := []rune(text)
	limit := maxTokens * 4
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit]) + "..."
}

// TokenBudget hands out a fixed number of prompt tokens across blocks.
type TokenBudget struct {
	remaining int
}

// NewTokenBudget creates a budget; max <= 0 means unlimited.
func NewTokenBudget(max int) *TokenBudget {
	if max <= 0 {
		return &TokenBudget{remaining: -1}
	}
	return &TokenBudget{remaining: max}
}

// Take returns block if it fits, a truncated block if only part fits, and
// false once the budget is exhausted.
func (b *TokenBudget) Take(block string) (string, bool) {
	if b.remaining < 0 {
		return block, true
	}
	if b.remaining == 0 {
		return "", false
	}
	cost := CountTokens(block)
	if cost <= b.remaining {
		b.remaining -= cost
		return block, true
	}
	cut := TruncateToTokens(block, b.remaining)
	b.remaining = 0
	return cut, true
}

func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}
