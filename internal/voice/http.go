package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
)

// HTTPConfig configures an OpenAI-compatible /v1/audio/speech backend such as Kokoro.
type HTTPConfig struct {
	Endpoint       string
	Model          string
	Voice          string
	ResponseFormat string
	Speed          float64
	Timeout        time.Duration

	// Player is a command line that reads audio from stdin.
	Player string
}

// DefaultHTTPConfig returns defaults for a local Kokoro server.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Endpoint:       "http://localhost:8880/v1/audio/speech",
		Model:          "kokoro",
		Voice:          "af_bella",
		ResponseFormat: "wav",
		Speed:          1.0,
		Timeout:        60 * time.Second,
		Player:         "ffplay -nodisp -autoexit -loglevel quiet -",
	}
}

// PlayFunc plays synthesized audio, returning when playback ends.
type PlayFunc func(ctx context.Context, audio []byte) error

// HTTPSynthesizer synthesizes speech over HTTP and hands the audio to a player.
type HTTPSynthesizer struct {
	cfg    HTTPConfig
	client *http.Client
	play   PlayFunc
	log    *logging.Logger
}

// NewHTTPSynthesizer fills unset fields from DefaultHTTPConfig.
func NewHTTPSynthesizer(cfg HTTPConfig, log *logging.Logger) *HTTPSynthesizer {
	def := DefaultHTTPConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Voice == "" {
		cfg.Voice = def.Voice
	}
	if cfg.ResponseFormat == "" {
		cfg.ResponseFormat = def.ResponseFormat
	}
	if cfg.Speed == 0 {
		cfg.Speed = def.Speed
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Player == "" {
		cfg.Player = def.Player
	}
	if log == nil {
		log = logging.Nop()
	}

	s := &HTTPSynthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithComponent("tts"),
	}
	s.play = s.playCommand
	return s
}

// SetPlayFunc replaces the audio player.
func (s *HTTPSynthesizer) SetPlayFunc(fn PlayFunc) {
	s.play = fn
}

// Say synthesizes text and plays it.
func (s *HTTPSynthesizer) Say(ctx context.Context, text string) error {
	audio, err := s.synthesize(ctx, text)
	if err != nil {
		return err
	}
	return s.play(ctx, audio)
}

// ttsRequest is the OpenAI-compatible TTS request body.
type ttsRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

func (s *HTTPSynthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()

	body, err := json.Marshal(ttsRequest{
		Model:          s.cfg.Model,
		Input:          text,
		Voice:          s.cfg.Voice,
		ResponseFormat: s.cfg.ResponseFormat,
		Speed:          s.cfg.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("TTS API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	s.log.Zerolog().Debug().
		Int("audio_bytes", len(audio)).
		Dur("latency", time.Since(start)).
		Msg("TTS synthesis complete")
	return audio, nil
}

func (s *HTTPSynthesizer) playCommand(ctx context.Context, audio []byte) error {
	fields := strings.Fields(s.cfg.Player)
	if len(fields) == 0 {
		return fmt.Errorf("%w: no audio player configured", ErrNoCommand)
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdin = bytes.NewReader(audio)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("play audio: %w", err)
	}
	return nil
}
