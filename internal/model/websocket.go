package model

// WebSocket message types
const (
	WSMessageTypeJob  = "job"
	WSMessageTypePing = "ping"
	WSMessageTypePong = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJobMessage carries one job lifecycle transition to subscribers.
type WSJobMessage struct {
	Type   string           `json:"type"`
	JobID  string           `json:"jobId"`
	Status JobStatus        `json:"status"`
	TxRef  string           `json:"txRef,omitempty"`
	Error  *SubmissionError `json:"error,omitempty"`
}
