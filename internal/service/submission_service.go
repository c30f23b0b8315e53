package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

var (
	// ErrGradingFailure: the answer key could not be read. Nothing was stored.
	ErrGradingFailure = errors.New("grading failed")
	// ErrPersistenceFailure: the transaction was rolled back. Safe to retry.
	ErrPersistenceFailure = errors.New("persisting submission failed")
)

// AnswerKeySource supplies the grading key and the join time.
type AnswerKeySource interface {
	GetAnswerKey(ctx context.Context, examID uuid.UUID) ([]model.GradingQuestion, error)
	StartedAt(ctx context.Context, examID uuid.UUID, studentID int, fallback time.Time) time.Time
}

// SessionWriter stores a graded session atomically.
type SessionWriter interface {
	SaveGraded(ctx context.Context, s *model.ExamSession, answers []model.StudentAnswer) (*model.ExamSession, bool, error)
}

// MonitorPublisher pushes live events to proctors.
type MonitorPublisher interface {
	Publish(ctx context.Context, examID uuid.UUID, v any) error
}

// SubmissionService grades and records a finished attempt. Only the
// answers are trusted from the client; the score is always recomputed.
type SubmissionService struct {
	keys      AnswerKeySource
	sessions  SessionWriter
	publisher MonitorPublisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(keys AnswerKeySource, sessions SessionWriter, publisher MonitorPublisher, m *metrics.Metrics, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		keys:      keys,
		sessions:  sessions,
		publisher: publisher,
		metrics:   m,
		log:       log.With().Str("component", "submission_service").Logger(),
		now:       time.Now,
	}
}

// Submit grades req against the answer key and stores the session with one
// row per question. A repeated submission returns the stored summary.
func (s *SubmissionService) Submit(ctx context.Context, examID uuid.UUID, studentID int, req model.SubmitRequest) (*model.SubmissionSummary, error) {
	answers, err := ParseAnswers(req.Answers)
	if err != nil {
		return nil, err
	}

	start := s.now()
	defer func() { s.metrics.GradingDuration(time.Since(start)) }()

	log := s.log.With().Str("exam_id", examID.String()).Int("student_id", studentID).Logger()

	key, err := s.keys.GetAnswerKey(ctx, examID)
	if errors.Is(err, ErrExamNotFound) {
		s.metrics.Submission(metrics.OutcomeExamNotFound)
		log.Warn().Msg("Submission for unknown exam")
		return nil, err
	}
	if err != nil {
		s.metrics.Submission(metrics.OutcomeGradingFailure)
		log.Error().Err(err).Msg("Answer key unavailable")
		return nil, fmt.Errorf("%w: %w", ErrGradingFailure, err)
	}

	correct := Grade(key, answers)
	finishedAt := s.now()
	session := &model.ExamSession{
		ID:             uuid.New(),
		ExamID:         examID,
		StudentID:      studentID,
		StartedAt:      s.keys.StartedAt(ctx, examID, studentID, finishedAt),
		FinishedAt:     &finishedAt,
		TotalQuestions: len(key),
		CorrectAnswers: correct,
		Score:          Score(correct, len(key)),
	}
	rows := BuildAnswerRows(session.ID, key, answers, req.FlaggedIndices)

	stored, created, err := s.sessions.SaveGraded(ctx, session, rows)
	if err != nil {
		s.metrics.Submission(metrics.OutcomePersistFailure)
		log.Error().Err(err).Msg("Failed to persist submission")
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	summary := stored.Summary()
	if !created {
		s.metrics.Submission(metrics.OutcomeDuplicate)
		log.Info().Msg("Duplicate submission, returning stored result")
		return &summary, nil
	}

	s.metrics.Submission(metrics.OutcomeGraded)
	log.Info().
		Int("score", summary.Score).
		Int("correct", summary.Correct).
		Int("total", summary.Total).
		Msg("Submission graded")

	msg := ws.MonitorMessage{
		Type:      ws.MessageSubmitted,
		ExamID:    examID.String(),
		StudentID: studentID,
		Score:     &summary.Score,
		At:        finishedAt,
	}
	if err := s.publisher.Publish(ctx, examID, msg); err != nil {
		log.Warn().Err(err).Msg("Failed to publish submission to monitor")
	}

	return &summary, nil
}
