package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// MonitorSource is the storage behind the live feed.
type MonitorSource interface {
	ViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int, error)
	Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub
}

// Feed is an attached subscription to one exam's channel.
type Feed struct {
	Messages <-chan []byte
	close    func() error
}

// Close detaches the feed.
func (f *Feed) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}

// NewFeed wraps a message channel; close may be nil.
func NewFeed(messages <-chan []byte, close func() error) *Feed {
	return &Feed{Messages: messages, close: close}
}

// MonitorService orchestrates live exam monitoring.
type MonitorService struct {
	exams  ExamStore
	source MonitorSource
	log    zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(exams ExamStore, source MonitorSource, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		exams:  exams,
		source: source,
		log:    log.With().Str("component", "monitor_service").Logger(),
	}
}

// Snapshot returns the exam header and the violation totals so far.
// Violation counts are best-effort.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*ws.SnapshotMessage, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	counts, err := s.source.ViolationCounts(ctx, examID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to load violation counts")
		counts = map[int]int{}
	}

	return &ws.SnapshotMessage{
		Type:       ws.MessageSnapshot,
		ExamID:     examID.String(),
		Title:      exam.Title,
		Duration:   exam.DurationMinutes,
		Violations: counts,
	}, nil
}

// Subscribe attaches to the exam's channel until ctx is done or the feed is closed.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *Feed {
	pubsub := s.source.Subscribe(ctx, examID)
	out := make(chan []byte)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return NewFeed(out, pubsub.Close)
}
