package server

// Client → server frame types.
const (
	FrameUtterance = "utterance"
	FrameStop      = "stop"
	FrameSpeech    = "speech"
	FrameAnalyze   = "analyze"
)

// Server → client frame types.
const (
	FrameActivity = "activity"
	FrameResult   = "result"
	FrameError    = "error"
	FrameProgress = "progress"
)

// Inbound is a frame sent by a chat client.
type Inbound struct {
	Type string `json:"type"`
	// ID is echoed on every frame produced for this request.
	ID        string `json:"id,omitempty"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Path      string `json:"path,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// Outbound is a frame sent to a chat client.
type Outbound struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Active  *bool  `json:"active,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
	Percent int    `json:"percent,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}
