package websocket

import "time"

// ─── Messages (Server → Proctor) ────────────────────────────────────

type MessageType string

const (
	MessageSnapshot  MessageType = "snapshot"
	MessageViolation MessageType = "violation"
	MessageSubmitted MessageType = "submitted"
	MessagePing      MessageType = "ping"
	MessageError     MessageType = "error"
)

// MonitorMessage is published on the exam channel and forwarded verbatim.
type MonitorMessage struct {
	Type      MessageType `json:"type"`
	ExamID    string      `json:"exam_id"`
	StudentID int         `json:"student_id"`
	Kind      string      `json:"kind,omitempty"`
	Count     int         `json:"count,omitempty"`
	Score     *int        `json:"score,omitempty"`
	At        time.Time   `json:"at"`
}

// SnapshotMessage is sent once when a proctor attaches.
type SnapshotMessage struct {
	Type       MessageType `json:"type"`
	ExamID     string      `json:"exam_id"`
	Title      string      `json:"title"`
	Duration   int         `json:"duration_minutes"`
	Violations map[int]int `json:"violations"`
}

type PingMessage struct {
	Type MessageType `json:"type"`
}

type ErrorMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}
