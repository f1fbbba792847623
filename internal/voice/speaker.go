package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
)

// stopWait bounds how long Stop waits for a cancelled utterance to wind down.
const stopWait = 2 * time.Second

// Speaker plays one utterance at a time. A new Speak pre-empts the current
// one; Stop cancels it. All methods are safe for concurrent use.
type Speaker struct {
	synth Synthesizer
	log   *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewSpeaker wraps synth. A nil synth speaks nothing.
func NewSpeaker(synth Synthesizer, log *logging.Logger) *Speaker {
	if synth == nil {
		synth = Nop{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Speaker{synth: synth, log: log.WithComponent("speech")}
}

// Speak stops any current utterance and starts text in the background.
// It returns without waiting for playback; the new utterance begins once the
// previous one has wound down.
func (s *Speaker) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prevCancel, prevDone := s.cancel, s.done
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	go func() {
		defer close(done)
		defer cancel()
		if prevDone != nil && !s.await(ctx, prevDone) {
			return
		}
		if err := s.synth.Say(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("speech failed: %v", err)
		}
	}()
}

// await waits for a previous utterance to finish. It reports false when ctx
// is cancelled first.
func (s *Speaker) await(ctx context.Context, prev <-chan struct{}) bool {
	select {
	case <-prev:
	case <-ctx.Done():
		return false
	case <-time.After(stopWait):
		s.log.Warn("synthesizer did not stop within %s", stopWait)
	}
	return ctx.Err() == nil
}

// Stop cancels the current utterance, if any, and waits briefly for it to
// end. Calling it when idle is a no-op.
func (s *Speaker) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	s.halt(cancel, done)
}

// Speaking reports whether an utterance is in progress.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Close stops playback and rejects further Speak calls.
func (s *Speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	s.halt(cancel, done)
	return nil
}

func (s *Speaker) halt(cancel context.CancelFunc, done <-chan struct{}) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(stopWait):
		s.log.Warn("synthesizer did not stop within %s", stopWait)
	}
}
