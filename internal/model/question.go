package model

import (
	"github.com/google/uuid"
)

// Question is the authoritative question row, including the answer key.
// Only the repository and the grading path see this type.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	QuestionText  string    `json:"question_text"`
	Options       []string  `json:"options"`
	CorrectOption int       `json:"correct_option"`
	ImageURL      *string   `json:"image_url,omitempty"`
	SortOrder     int       `json:"sort_order"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
// QuestionText is returned verbatim; the renderer escapes it.
type QuestionForStudent struct {
	ID           uuid.UUID `json:"id"`
	QuestionText string    `json:"question_text"`
	Options      []string  `json:"options"`
	ImageURL     *string   `json:"image_url,omitempty"`
	SortOrder    int       `json:"sort_order"`
}

// GradingQuestion is one entry of the authoritative answer key.
type GradingQuestion struct {
	ID            uuid.UUID `json:"id"`
	SortOrder     int       `json:"sort_order"`
	CorrectOption int       `json:"correct_option"`
}

// ForStudent strips the answer key.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		Options:      q.Options,
		ImageURL:     q.ImageURL,
		SortOrder:    q.SortOrder,
	}
}
