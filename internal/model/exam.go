package model

import (
	"github.com/google/uuid"
)

// Exam represents an exam entity. It does not change while an attempt is running.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Subject         string    `json:"subject"`
	DurationMinutes int       `json:"duration_minutes"`
	IsActive        bool      `json:"is_active"`
	EntryToken      string    `json:"-"`
}

// JoinExamRequest is the payload for a student joining an exam.
type JoinExamRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}

// ExamPaper is the student-facing exam payload. It holds no answer key.
// MaxViolations is stamped from the live settings on every join and is not
// part of the cached copy.
type ExamPaper struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	Subject         string               `json:"subject"`
	DurationMinutes int                  `json:"duration_minutes"`
	MaxViolations   int                  `json:"max_violations,omitempty"`
	Questions       []QuestionForStudent `json:"questions"`
}
