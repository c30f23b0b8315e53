package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// Domain Errors
var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrExamNotAvailable  = errors.New("exam is not available for joining")
	ErrInvalidEntryToken = errors.New("invalid entry token")
	ErrAlreadySubmitted  = errors.New("exam already submitted")
)

// ExamStore reads exams.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// QuestionStore reads the authoritative questions of an exam.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// SessionLookup finds a graded session.
type SessionLookup interface {
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
}

// ExamCache is the Redis side of the exam read path.
// Reads return repository.ErrCacheMiss when a key is absent.
type ExamCache interface {
	GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error)
	SetPaper(ctx context.Context, paper *model.ExamPaper) error
	GetAnswerKey(ctx context.Context, examID uuid.UUID) ([]model.GradingQuestion, error)
	SetAnswerKey(ctx context.Context, examID uuid.UUID, key []model.GradingQuestion) error
	MarkJoined(ctx context.Context, examID uuid.UUID, studentID int, at time.Time) error
	JoinedAt(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, error)
}

// ExamService handles exam access and Redis caching.
type ExamService struct {
	examRepo     ExamStore
	questionRepo QuestionStore
	sessionRepo  SessionLookup
	cache        ExamCache
	settings     SettingsReader
	log          zerolog.Logger
	now          func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo ExamStore,
	questionRepo QuestionStore,
	sessionRepo SessionLookup,
	cache ExamCache,
	settings SettingsReader,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		sessionRepo:  sessionRepo,
		cache:        cache,
		settings:     settings,
		log:          log.With().Str("component", "exam_service").Logger(),
		now:          time.Now,
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// Join validates the entry token and returns the student paper stamped with
// the current max_violations setting. The join time is cached so the graded
// session can record when the attempt began.
func (s *ExamService) Join(ctx context.Context, examID uuid.UUID, studentID int, entryToken string) (*model.ExamPaper, error) {
	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsActive {
		return nil, ErrExamNotAvailable
	}
	if exam.EntryToken != entryToken {
		return nil, ErrInvalidEntryToken
	}

	_, err = s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err == nil {
		return nil, ErrAlreadySubmitted
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	cached, err := s.paper(ctx, exam)
	if err != nil {
		return nil, err
	}
	paper := *cached
	paper.MaxViolations = s.settings.Get().MaxViolations

	if err := s.cache.MarkJoined(ctx, examID, studentID, s.now()); err != nil {
		// StartedAt falls back to the submit time.
		s.log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to cache join time")
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Int("questions", len(paper.Questions)).
		Msg("Student joined exam")
	return &paper, nil
}

func (s *ExamService) paper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	paper, err := s.cache.GetPaper(ctx, exam.ID)
	if err == nil {
		return paper, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache read failed, using database")
	}

	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	paper = &model.ExamPaper{
		ExamID:          exam.ID,
		Title:           exam.Title,
		Subject:         exam.Subject,
		DurationMinutes: exam.DurationMinutes,
		Questions:       make([]model.QuestionForStudent, len(questions)),
	}
	for i, q := range questions {
		paper.Questions[i] = q.ForStudent()
	}

	if err := s.cache.SetPaper(ctx, paper); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to cache paper")
	}
	s.cacheKey(ctx, exam.ID, questions)
	return paper, nil
}

// GetAnswerKey returns the authoritative key ordered by sort_order, from
// the Redis copy when present and PostgreSQL otherwise. An unknown exam
// yields ErrExamNotFound.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID uuid.UUID) ([]model.GradingQuestion, error) {
	key, err := s.cache.GetAnswerKey(ctx, examID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Answer key cache read failed, using database")
	}

	if _, err := s.GetByID(ctx, examID); err != nil {
		return nil, err
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return s.cacheKey(ctx, examID, questions), nil
}

func (s *ExamService) cacheKey(ctx context.Context, examID uuid.UUID, questions []model.Question) []model.GradingQuestion {
	key := make([]model.GradingQuestion, len(questions))
	for i, q := range questions {
		key[i] = model.GradingQuestion{ID: q.ID, SortOrder: q.SortOrder, CorrectOption: q.CorrectOption}
	}
	if err := s.cache.SetAnswerKey(ctx, examID, key); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache answer key")
	}
	return key
}

// StartedAt returns when the student joined, or fallback if unknown.
func (s *ExamService) StartedAt(ctx context.Context, examID uuid.UUID, studentID int, fallback time.Time) time.Time {
	at, err := s.cache.JoinedAt(ctx, examID, studentID)
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to read join time")
		}
		return fallback
	}
	return at
}
