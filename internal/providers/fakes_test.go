package providers

import (
	"context"
	"sync"
)

// scriptedAnswerer records prompts and replies with a fixed answer or error.
type scriptedAnswerer struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (s *scriptedAnswerer) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *scriptedAnswerer) Name() string { return "scripted" }

func (s *scriptedAnswerer) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
