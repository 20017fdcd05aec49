package llm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// StreamEvent is one SSE data payload from the upstream, or a terminal
// error. Data holds the raw JSON chunk for verbatim forwarding.
type StreamEvent struct {
	Data []byte
	Err  error
}

// Stream is a finite, single-pass sequence of upstream chat completion
// chunks. Close stops upstream consumption promptly; the events channel is
// closed when the upstream terminates or Close is called.
type Stream struct {
	events    chan StreamEvent
	closeOnce sync.Once
	cancel    context.CancelFunc
	body      io.ReadCloser
}

// newStream starts the reader goroutine over an open SSE response body.
func newStream(ctx context.Context, body io.ReadCloser, logger *zap.Logger) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		events: make(chan StreamEvent, 16),
		cancel: cancel,
		body:   body,
	}

	// Watchdog: force-close the body on cancellation so the scanner
	// unblocks even mid-read.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			body.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(s.events)
		defer close(done)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			select {
			case s.events <- StreamEvent{Data: []byte(data)}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warn("SSE stream terminated abnormally", zap.Error(err))
			select {
			case s.events <- StreamEvent{Err: fmt.Errorf("stream read: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return s
}

// Events returns the chunk channel. Chunks arrive in upstream order.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Close cancels the stream and releases the upstream connection. Safe to
// call multiple times.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}
