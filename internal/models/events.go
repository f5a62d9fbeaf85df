// Package models defines the data structures for call and clip events.
package models

// Call event types.
const (
	CallStarted = "call.started"
	CallHangup  = "call.hangup"
	CallClosed  = "call.closed"
)

// Clip event types.
const (
	ClipCompleted = "clip.completed"
	ClipFailed    = "clip.failed"
)

// CallEvent reports a lifecycle change of a conversation.
type CallEvent struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	Timestamp  int64  `json:"timestamp"`
	VoiceMode  string `json:"voiceMode,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// ClipEvent reports the outcome of one clip run.
type ClipEvent struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId,omitempty"`
	Kind       string `json:"kind"`
	CacheKey   string `json:"cacheKey,omitempty"`
	Bytes      int64  `json:"bytes"`
	Timestamp  int64  `json:"timestamp"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}
