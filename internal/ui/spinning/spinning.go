// Package spinning provides a spinning symbol to display while the program is busy (e.g. compiling
// the computation graphs in the first training step), and the capture of interrupts for a graceful
// shutdown.
package spinning

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"k8s.io/klog/v2"
)

// ThemeAscii is the default sequence of symbols.
var ThemeAscii = []rune(`|/-\`)

// Spinning displays the symbols of a theme in a loop, in a separate goroutine, until Done is called.
type Spinning struct {
	wg     sync.WaitGroup
	cancel func()
}

// SafeInterrupt captures SIGINT (Ctrl+C) and SIGTERM and calls onInterrupt.
// If the program hasn't exited after gracePeriod, the terminal is reset and the program exits.
//
// It returns a function that stops capturing the signals.
func SafeInterrupt(onInterrupt func(), gracePeriod time.Duration) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-done:
			return
		case s := <-sigChan:
			fmt.Println()
			klog.Errorf("Got interrupted (signal %q), shutting down... (%s)", s, gracePeriod)
			if onInterrupt != nil {
				go onInterrupt()
			}
		}
		select {
		case <-done:
		case <-time.After(gracePeriod):
			Reset(os.Stdout)
			klog.Fatalf("Graceful shutting down %s period expired, exiting.", gracePeriod)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
		})
	}
}

// Reset terminal: make cursor visible, restore default terminal colors.
func Reset(w io.Writer) {
	_, _ = fmt.Fprint(w, "\033[?25h\033[39;49;0m\n")
}

// New starts a spinning display on w with the given theme (ThemeAscii if nil).
// It stops when Spinning.Done is called or ctx is cancelled.
func New(ctx context.Context, w io.Writer, theme []rune, period time.Duration) *Spinning {
	if len(theme) == 0 {
		theme = ThemeAscii
	}
	s := &Spinning{}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		// Hide cursor while spinning.
		_, _ = fmt.Fprint(w, "\033[?25l")
		defer func() { _, _ = fmt.Fprint(w, "\033[?25h") }()

		_, _ = fmt.Fprint(w, " ")
		for idx := 0; ; idx = (idx + 1) % len(theme) {
			_, _ = fmt.Fprintf(w, "\b%c", theme[idx])
			select {
			case <-ctx.Done():
				_, _ = fmt.Fprint(w, "\b \b")
				return
			case <-ticker.C:
			}
		}
	}()
	return s
}

// Done stops the spinning display and waits for it to clean up.
func (s *Spinning) Done() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
}
