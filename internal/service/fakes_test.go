package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

type fakeExams map[uuid.UUID]*model.Exam

func (f fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if e, ok := f[id]; ok {
		return e, nil
	}
	return nil, pgx.ErrNoRows
}

type fakeQuestions struct {
	byExam map[uuid.UUID][]model.Question
	calls  int
	err    error
}

func (f *fakeQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byExam[examID], nil
}

type fakeSessions struct {
	mu      sync.Mutex
	stored  map[string]*model.ExamSession
	answers map[uuid.UUID][]model.StudentAnswer
	err     error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		stored:  map[string]*model.ExamSession{},
		answers: map[uuid.UUID][]model.StudentAnswer{},
	}
}

func sessionKey(examID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%s/%d", examID, studentID)
}

func (f *fakeSessions) GetByExamAndStudent(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.stored[sessionKey(examID, studentID)]; ok {
		return s, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessions) SaveGraded(_ context.Context, s *model.ExamSession, answers []model.StudentAnswer) (*model.ExamSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	k := sessionKey(s.ExamID, s.StudentID)
	if existing, ok := f.stored[k]; ok {
		return existing, false, nil
	}
	f.stored[k] = s
	f.answers[s.ID] = answers
	return s, true, nil
}

type fakeCache struct {
	mu      sync.Mutex
	papers  map[uuid.UUID]*model.ExamPaper
	keys    map[uuid.UUID][]model.GradingQuestion
	joined  map[string]time.Time
	readErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		papers: map[uuid.UUID]*model.ExamPaper{},
		keys:   map[uuid.UUID][]model.GradingQuestion{},
		joined: map[string]time.Time{},
	}
}

func (f *fakeCache) GetPaper(_ context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if p, ok := f.papers[examID]; ok {
		return p, nil
	}
	return nil, repository.ErrCacheMiss
}

func (f *fakeCache) SetPaper(_ context.Context, paper *model.ExamPaper) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.papers[paper.ExamID] = paper
	return nil
}

func (f *fakeCache) GetAnswerKey(_ context.Context, examID uuid.UUID) ([]model.GradingQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if k, ok := f.keys[examID]; ok {
		return k, nil
	}
	return nil, repository.ErrCacheMiss
}

func (f *fakeCache) SetAnswerKey(_ context.Context, examID uuid.UUID, key []model.GradingQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[examID] = key
	return nil
}

func (f *fakeCache) MarkJoined(_ context.Context, examID uuid.UUID, studentID int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := sessionKey(examID, studentID)
	if _, ok := f.joined[k]; !ok {
		f.joined[k] = at
	}
	return nil
}

func (f *fakeCache) JoinedAt(_ context.Context, examID uuid.UUID, studentID int) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if at, ok := f.joined[sessionKey(examID, studentID)]; ok {
		return at, nil
	}
	return time.Time{}, repository.ErrCacheMiss
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []any
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, _ uuid.UUID, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, v)
	return f.err
}

type fakeQueue struct {
	events []model.ViolationEvent
	err    error
}

func (f *fakeQueue) EnqueueViolation(_ context.Context, ev model.ViolationEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

// questions builds n questions whose correct option cycles through 0..3.
func questions(examID uuid.UUID, n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            uuid.New(),
			ExamID:        examID,
			QuestionText:  "Soal",
			Options:       []string{"A", "B", "C", "D"},
			CorrectOption: i % 4,
			SortOrder:     i,
		}
	}
	return qs
}
