package types

import "time"

// TranscodeEvent is a WebSocket message describing a change in the state of
// one episode's transcode.
type TranscodeEvent struct {
	Key       string    `json:"key"`  // "book/season/episode"
	Type      string    `json:"type"` // "queued", "started", "completed", "failed"
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
