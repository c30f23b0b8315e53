package service

import (
	"errors"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrInvalidAnswers is returned when an answer key is not a question index.
var ErrInvalidAnswers = errors.New("answers must be keyed by question index")

// ParseAnswers converts wire answers into index → option. Keys must be
// canonical non-negative base-10 integers ("5", never "05" or "+5"), so no
// two keys can name the same question.
func ParseAnswers(raw map[string]int) (map[int]int, error) {
	out := make(map[int]int, len(raw))
	for k, v := range raw {
		idx, ok := QuestionIndex(k)
		if !ok {
			return nil, ErrInvalidAnswers
		}
		out[idx] = v
	}
	return out, nil
}

// QuestionIndex parses a canonical question index key.
func QuestionIndex(key string) (int, bool) {
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 || strconv.Itoa(idx) != key {
		return 0, false
	}
	return idx, true
}

// Grade counts the positions where the chosen option equals the key.
// key is ordered by sort_order; answers outside the key are ignored.
func Grade(key []model.GradingQuestion, answers map[int]int) int {
	correct := 0
	for i, q := range key {
		if opt, ok := answers[i]; ok && opt == q.CorrectOption {
			correct++
		}
	}
	return correct
}

// Score is the rounded percentage of correct answers, or 0 for an empty exam.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// BuildAnswerRows returns one row per question in key order. Unanswered
// questions get a nil SelectedAnswer.
func BuildAnswerRows(sessionID uuid.UUID, key []model.GradingQuestion, answers map[int]int, flagged []int) []model.StudentAnswer {
	isFlagged := make(map[int]bool, len(flagged))
	for _, idx := range flagged {
		isFlagged[idx] = true
	}

	rows := make([]model.StudentAnswer, len(key))
	for i, q := range key {
		rows[i] = model.StudentAnswer{
			SessionID:  sessionID,
			QuestionID: q.ID,
			IsFlagged:  isFlagged[i],
		}
		if opt, ok := answers[i]; ok {
			rows[i].SelectedAnswer = &opt
		}
	}
	return rows
}
