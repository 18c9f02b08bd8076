package spinning

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpinning(t *testing.T) {
	var buf bytes.Buffer
	s := New(context.Background(), &buf, []rune("ab"), time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Done()
	s.Done() // Second call is a no-op.

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\033[?25l"), "cursor should be hidden first: %q", out)
	assert.True(t, strings.HasSuffix(out, "\b \b\033[?25h"), "spinner should be erased and cursor restored: %q", out)
	assert.Contains(t, out, "\ba")
	assert.Contains(t, out, "\bb")
}

func TestSpinningCancelled(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, &buf, nil, time.Hour)
	cancel()
	s.Done()
	assert.Contains(t, buf.String(), "\b|")
}

func TestSafeInterrupt(t *testing.T) {
	stop := SafeInterrupt(func() { t.Error("unexpected interrupt") }, time.Second)
	stop()
	stop()
}
