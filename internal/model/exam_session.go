package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamSession is the graded record of one completed attempt.
// FinishedAt is set once, by the submission path.
type ExamSession struct {
	ID             uuid.UUID  `json:"id"`
	ExamID         uuid.UUID  `json:"exam_id"`
	StudentID      int        `json:"student_id"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	TotalQuestions int        `json:"total_questions"`
	CorrectAnswers int        `json:"correct_answers"`
	Score          int        `json:"score"`
}

// IsGraded reports whether the session has been finalized.
func (s *ExamSession) IsGraded() bool {
	return s.FinishedAt != nil
}

// Summary returns the only grading data ever sent back to a student.
func (s *ExamSession) Summary() SubmissionSummary {
	return SubmissionSummary{
		Score:   s.Score,
		Correct: s.CorrectAnswers,
		Total:   s.TotalQuestions,
	}
}

// StudentAnswer is one per-question record of a session.
// SelectedAnswer is nil when the question was left blank.
type StudentAnswer struct {
	SessionID      uuid.UUID `json:"session_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedAnswer *int      `json:"selected_answer"`
	IsFlagged      bool      `json:"is_flagged"`
}

// ExamResult is one row of the admin results table.
type ExamResult struct {
	SessionID      uuid.UUID  `json:"session_id"`
	StudentID      int        `json:"student_id"`
	Score          int        `json:"score"`
	CorrectAnswers int        `json:"correct_answers"`
	TotalQuestions int        `json:"total_questions"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	Violations     int        `json:"violations"`
	Passed         bool       `json:"passed"`
}
