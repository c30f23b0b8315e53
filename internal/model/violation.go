package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind names a class of counted proctoring signal.
type ViolationKind string

const (
	ViolationClipboard      ViolationKind = "clipboard"
	ViolationFocusLost      ViolationKind = "focus_lost"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationScreenshot     ViolationKind = "screenshot"
)

// ViolationEvent is one audited soft signal reported by a student client.
type ViolationEvent struct {
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	Kind       ViolationKind `json:"kind"`
	Count      int           `json:"count"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// ReportViolationRequest is the body of POST /api/v1/student/exams/:exam_id/violations.
type ReportViolationRequest struct {
	Kind  ViolationKind `json:"kind" binding:"required,oneof=clipboard focus_lost fullscreen_exit screenshot"`
	Count int           `json:"count" binding:"required,min=1"`
}
