package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

type examFixture struct {
	svc       *ExamService
	exam      *model.Exam
	questions *fakeQuestions
	sessions  *fakeSessions
	cache     *fakeCache
	settings  *liveSettings
}

type liveSettings struct{ current model.AppSettings }

func (s *liveSettings) Get() model.AppSettings { return s.current }

func newExamFixture(n int) *examFixture {
	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Matematika",
		Subject:         "MTK",
		DurationMinutes: 90,
		IsActive:        true,
		EntryToken:      "ABCD12",
	}
	f := &examFixture{
		exam:      exam,
		questions: &fakeQuestions{byExam: map[uuid.UUID][]model.Question{exam.ID: questions(exam.ID, n)}},
		sessions:  newFakeSessions(),
		cache:     newFakeCache(),
		settings:  &liveSettings{current: model.AppSettings{MaxViolations: 3, PassThreshold: 70}},
	}
	f.svc = NewExamService(fakeExams{exam.ID: exam}, f.questions, f.sessions, f.cache, f.settings, zerolog.Nop())
	return f
}

func TestExamService_Join(t *testing.T) {
	f := newExamFixture(3)

	paper, err := f.svc.Join(context.Background(), f.exam.ID, 5, "ABCD12")
	require.NoError(t, err)
	assert.Equal(t, f.exam.ID, paper.ExamID)
	assert.Equal(t, 90, paper.DurationMinutes)
	require.Len(t, paper.Questions, 3)
	for i, q := range paper.Questions {
		assert.Equal(t, i, q.SortOrder)
	}

	_, err = f.svc.cache.JoinedAt(context.Background(), f.exam.ID, 5)
	assert.NoError(t, err, "join time cached")
	assert.Len(t, f.cache.keys[f.exam.ID], 3, "answer key warmed alongside the paper")
}

func TestExamService_JoinUsesCachedPaper(t *testing.T) {
	f := newExamFixture(2)

	_, err := f.svc.Join(context.Background(), f.exam.ID, 5, "ABCD12")
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), f.exam.ID, 6, "ABCD12")
	require.NoError(t, err)

	assert.Equal(t, 1, f.questions.calls)
}

func TestExamService_JoinKeepsFirstJoinTime(t *testing.T) {
	f := newExamFixture(1)
	first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return first }
	_, err := f.svc.Join(context.Background(), f.exam.ID, 5, "ABCD12")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return first.Add(10 * time.Minute) }
	_, err = f.svc.Join(context.Background(), f.exam.ID, 5, "ABCD12")
	require.NoError(t, err)

	assert.Equal(t, first, f.svc.StartedAt(context.Background(), f.exam.ID, 5, time.Time{}))
}

func TestExamService_JoinEmptyExam(t *testing.T) {
	f := newExamFixture(0)

	paper, err := f.svc.Join(context.Background(), f.exam.ID, 5, "ABCD12")
	require.NoError(t, err)
	assert.NotNil(t, paper.Questions)
	assert.Empty(t, paper.Questions)
}

func TestExamService_JoinRejects(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(f *examFixture) (uuid.UUID, string)
		want    error
	}{
		{
			name:    "unknown exam",
			prepare: func(f *examFixture) (uuid.UUID, string) { return uuid.New(), "ABCD12" },
			want:    ErrExamNotFound,
		},
		{
			name: "inactive",
			prepare: func(f *examFixture) (uuid.UUID, string) {
				f.exam.IsActive = false
				return f.exam.ID, "ABCD12"
			},
			want: ErrExamNotAvailable,
		},
		{
			name:    "wrong token",
			prepare: func(f *examFixture) (uuid.UUID, string) { return f.exam.ID, "WRONG1" },
			want:    ErrInvalidEntryToken,
		},
		{
			name: "already graded",
			prepare: func(f *examFixture) (uuid.UUID, string) {
				f.sessions.stored[sessionKey(f.exam.ID, 5)] = &model.ExamSession{ExamID: f.exam.ID, StudentID: 5}
				return f.exam.ID, "ABCD12"
			},
			want: ErrAlreadySubmitted,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newExamFixture(2)
			id, token := tc.prepare(f)

			_, err := f.svc.Join(context.Background(), id, 5, token)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.cache.joined)
		})
	}
}

func TestExamService_JoinCarriesLiveMaxViolations(t *testing.T) {
	f := newExamFixture(2)

	paper, err := f.svc.Join(context.Background(), f.exam.ID, 5, "ABCD12")
	require.NoError(t, err)
	assert.Equal(t, 3, paper.MaxViolations)

	f.settings.current.MaxViolations = 1
	paper, err = f.svc.Join(context.Background(), f.exam.ID, 6, "ABCD12")
	require.NoError(t, err)
	assert.Equal(t, 1, paper.MaxViolations, "cached paper still gets the current setting")

	cached, err := f.cache.GetPaper(context.Background(), f.exam.ID)
	require.NoError(t, err)
	assert.Zero(t, cached.MaxViolations)
}

func TestExamService_GetAnswerKey(t *testing.T) {
	f := newExamFixture(4)

	key, err := f.svc.GetAnswerKey(context.Background(), f.exam.ID)
	require.NoError(t, err)
	require.Len(t, key, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, []int{key[0].CorrectOption, key[1].CorrectOption, key[2].CorrectOption, key[3].CorrectOption})

	_, err = f.svc.GetAnswerKey(context.Background(), f.exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.questions.calls, "second read served from cache")
}

func TestExamService_GetAnswerKeyFallsBackOnCacheError(t *testing.T) {
	f := newExamFixture(2)
	f.cache.readErr = errors.New("redis down")

	key, err := f.svc.GetAnswerKey(context.Background(), f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, key, 2)
}

func TestExamService_GetAnswerKeyUnknownExam(t *testing.T) {
	f := newExamFixture(2)

	_, err := f.svc.GetAnswerKey(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrExamNotFound)
	assert.Zero(t, f.questions.calls)
}

func TestExamService_GetAnswerKeyDatabaseError(t *testing.T) {
	f := newExamFixture(2)
	boom := errors.New("db down")
	f.questions.err = boom

	_, err := f.svc.GetAnswerKey(context.Background(), f.exam.ID)
	assert.ErrorIs(t, err, boom)
}
