package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// ViolationQueue accepts events for asynchronous persistence.
type ViolationQueue interface {
	EnqueueViolation(ctx context.Context, ev model.ViolationEvent) error
}

// ViolationService records soft proctoring signals. The client decides
// when an attempt ends; this is the audit trail and the live feed.
type ViolationService struct {
	queue     ViolationQueue
	publisher MonitorPublisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// NewViolationService creates a new ViolationService.
func NewViolationService(queue ViolationQueue, publisher MonitorPublisher, m *metrics.Metrics, log zerolog.Logger) *ViolationService {
	return &ViolationService{
		queue:     queue,
		publisher: publisher,
		metrics:   m,
		log:       log.With().Str("component", "violation_service").Logger(),
		now:       time.Now,
	}
}

// Report queues the event and forwards it to attached proctors.
func (s *ViolationService) Report(ctx context.Context, examID uuid.UUID, studentID int, req model.ReportViolationRequest) error {
	ev := model.ViolationEvent{
		ExamID:     examID,
		StudentID:  studentID,
		Kind:       req.Kind,
		Count:      req.Count,
		RecordedAt: s.now(),
	}

	if err := s.queue.EnqueueViolation(ctx, ev); err != nil {
		return fmt.Errorf("enqueue violation: %w", err)
	}
	s.metrics.Violation(string(ev.Kind))

	msg := ws.MonitorMessage{
		Type:      ws.MessageViolation,
		ExamID:    examID.String(),
		StudentID: studentID,
		Kind:      string(ev.Kind),
		Count:     ev.Count,
		At:        ev.RecordedAt,
	}
	if err := s.publisher.Publish(ctx, examID, msg); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish violation to monitor")
	}
	return nil
}
