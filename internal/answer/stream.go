// Package answer orchestrates retrieval and generation into a single
// streaming answer.
package answer

import (
	"context"
	"sync"

	"github.com/kwhuang/manualqa/internal/retrieval"
)

// Stream delivers answer fragments as they are produced. The consumer ranges
// over Fragments and may call Close at any point to abandon the answer.
type Stream struct {
	fragments chan string
	cancel    context.CancelFunc

	mu      sync.Mutex
	closed  bool
	err     error
	sources []retrieval.Result
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		fragments: make(chan string, 100),
		cancel:    cancel,
	}
}

// Fragments returns the channel of answer fragments. It is closed when the
// answer is complete or the stream is abandoned.
func (s *Stream) Fragments() <-chan string {
	return s.fragments
}

// Close abandons the stream, releasing the underlying generation request.
// It is safe to call more than once and after the stream has finished.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

// Err reports the failure that ended the stream, if any. It is only
// meaningful after Fragments is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Sources returns the retrieved results the answer was grounded on. It is
// populated before the first generated fragment is delivered.
func (s *Stream) Sources() []retrieval.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources
}

func (s *Stream) setSources(sources []retrieval.Result) {
	s.mu.Lock()
	s.sources = sources
	s.mu.Unlock()
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// send delivers a fragment unless the context has been cancelled. It reports
// whether delivery succeeded.
func (s *Stream) send(ctx context.Context, fragment string) bool {
	select {
	case s.fragments <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}
