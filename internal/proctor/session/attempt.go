package session

import (
	"sort"
	"strconv"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Attempt is the in-memory state of one pass through an exam. It lives only
// as long as the Controller; nothing is persisted until submission.
type Attempt struct {
	Current    int
	Total      int
	Answers    map[int]int
	Flagged    map[int]bool
	Violations int
	Remaining  time.Duration
}

func newAttempt(total int, remaining time.Duration) Attempt {
	return Attempt{
		Total:     total,
		Answers:   make(map[int]int),
		Flagged:   make(map[int]bool),
		Remaining: remaining,
	}
}

func (a Attempt) clone() Attempt {
	out := a
	out.Answers = make(map[int]int, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	out.Flagged = make(map[int]bool, len(a.Flagged))
	for k := range a.Flagged {
		out.Flagged[k] = true
	}
	return out
}

// request packages the attempt for the wire. Flagged indices are sorted.
func (a Attempt) request() model.SubmitRequest {
	answers := make(map[string]int, len(a.Answers))
	for idx, opt := range a.Answers {
		answers[strconv.Itoa(idx)] = opt
	}
	flagged := make([]int, 0, len(a.Flagged))
	for idx := range a.Flagged {
		flagged = append(flagged, idx)
	}
	sort.Ints(flagged)
	return model.SubmitRequest{Answers: answers, FlaggedIndices: flagged}
}

// Pass reports whether a confirmed score meets the display threshold.
func Pass(score, threshold int) bool {
	return score >= threshold
}
