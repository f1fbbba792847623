package config

import "sync"

// Settings holds the runtime-mutable flags read at dispatch time.
// The presentation layer and the config watcher write it; workers read it.
type Settings struct {
	mu            sync.RWMutex
	speechEnabled bool
}

// NewSettings creates Settings seeded from the loaded config.
func NewSettings(cfg *Config) *Settings {
	s := &Settings{}
	if cfg != nil {
		s.speechEnabled = cfg.Speech.Enabled
	}
	return s
}

// SpeechEnabled reports whether responses should be spoken.
func (s *Settings) SpeechEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speechEnabled
}

// SetSpeechEnabled toggles spoken output for subsequent dispatches.
func (s *Settings) SetSpeechEnabled(enabled bool) {
	s.mu.Lock()
	s.speechEnabled = enabled
	s.mu.Unlock()
}

// Apply copies the runtime-mutable fields of cfg into s.
func (s *Settings) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	s.SetSpeechEnabled(cfg.Speech.Enabled)
}
