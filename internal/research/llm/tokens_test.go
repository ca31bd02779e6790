package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Zero(t, CountTokens(""))
	short := CountTokens("hello world")
	long := CountTokens(strings.Repeat("hello world ", 50))
	assert.Positive(t, short)
	assert.Greater(t, long, short)
}

func TestTruncateToTokens(t *testing.T) {
	text := strings.Repeat("evidence snippet ", 200)
	assert.Equal(t, text, TruncateToTokens(text, 0))
	assert.Equal(t, "short", TruncateToTokens("short", 100))

	cut := TruncateToTokens(text, 10)
	assert.Less(t, len(cut), len(text))
	assert.True(t, strings.HasSuffix(cut, "..."))
}

func TestTokenBudget(t *testing.T) {
	unlimited := NewTokenBudget(0)
	block, ok := unlimited.Take(strings.Repeat("x ", 1000))
	assert.True(t, ok)
	assert.Len(t, block, 2000)

	budget := NewTokenBudget(20)
	first, ok := budget.Take("a small block")
	assert.True(t, ok)
	assert.Equal(t, "a small block", first)

	second, ok := budget.Take(strings.Repeat("overflowing words ", 100))
	assert.True(t, ok)
	assert.True(t, strings.HasSuffix(second, "..."))

	_, ok = budget.Take("nothing left")
	assert.False(t, ok)
}
