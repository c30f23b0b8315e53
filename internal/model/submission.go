package model

import "encoding/json"

// SubmitRequest is the body of POST /api/v1/student/exams/:exam_id/submit.
// Keys of Answers are zero-based question indices in sort order.
// Any other field the client sends, a claimed score included, is ignored.
type SubmitRequest struct {
	Answers        AnswerMap `json:"answers" binding:"required,dive,keys,answer_index,endkeys,min=0"`
	FlaggedIndices []int     `json:"flagged_indices" binding:"omitempty,dive,min=0"`
}

// AnswerMap maps question index keys to the chosen option. A null option
// means the question was left unanswered and is dropped on decode.
type AnswerMap map[string]int

// UnmarshalJSON decodes an answers object, skipping null options.
func (m *AnswerMap) UnmarshalJSON(data []byte) error {
	var raw map[string]*int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(AnswerMap, len(raw))
	for k, opt := range raw {
		if opt != nil {
			out[k] = *opt
		}
	}
	*m = out
	return nil
}

// SubmissionSummary is the whole grading result returned to the student.
type SubmissionSummary struct {
	Score   int `json:"score"`
	Correct int `json:"correct"`
	Total   int `json:"total"`
}
