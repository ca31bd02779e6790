package async

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) Error(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, format)
}

func (c *captureLogger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func TestGoRecoversPanic(t *testing.T) {
	logger := &captureLogger{}
	done := make(chan struct{})
	Go(logger, "worker", func() {
		defer close(done)
		panic("boom")
	})
	<-done
	require.Eventually(t, func() bool { return logger.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, strings.Contains(logger.lines[0], "[%s]"))
}

func TestGoWithPanicHandlerReportsError(t *testing.T) {
	logger := &captureLogger{}
	got := make(chan *PanicError, 1)
	GoWithPanicHandler(logger, "research", func() { panic("kaboom") }, func(perr *PanicError) {
		got <- perr
	})

	select {
	case perr := <-got:
		assert.Equal(t, "panic in research: kaboom", perr.Error())
		assert.NotEmpty(t, perr.Stack)
	case <-time.After(time.Second):
		t.Fatal("panic handler was not called")
	}
	assert.Equal(t, 1, logger.count())
}

func TestGoWithPanicHandlerNoPanic(t *testing.T) {
	ran := make(chan struct{})
	GoWithPanicHandler(nil, "", func() { close(ran) }, func(*PanicError) {
		t.Error("unexpected panic callback")
	})
	<-ran
}
