package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MonitorRepository provides data access for violation auditing and the
// live proctor feed. It combines PostgreSQL (the audit table) and Redis
// (the persistence queue and the pub/sub channel).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// ─── Queue ──────────────────────────────────────────────────────────

// EnqueueViolation pushes an event onto the persistence queue.
func (r *MonitorRepository) EnqueueViolation(ctx context.Context, ev model.ViolationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	return r.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err()
}

// PopViolation blocks up to timeout for the next queued payload.
// Returns ErrCacheMiss when the queue stayed empty.
func (r *MonitorRepository) PopViolation(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := r.rdb.BLPop(ctx, timeout, config.WorkerKey.PersistViolationsQueue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, ErrCacheMiss
	}
	return []byte(result[1]), nil
}

// RequeueViolations pushes payloads back onto the queue in one round trip.
func (r *MonitorRepository) RequeueViolations(ctx context.Context, payloads [][]byte) error {
	pipe := r.rdb.Pipeline()
	for _, p := range payloads {
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, p)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// QueueLength reports how many events wait for persistence.
func (r *MonitorRepository) QueueLength(ctx context.Context) (int64, error) {
	return r.rdb.LLen(ctx, config.WorkerKey.PersistViolationsQueue).Result()
}

// ─── Audit table ────────────────────────────────────────────────────

// CopyViolations bulk-inserts events.
func (r *MonitorRepository) CopyViolations(ctx context.Context, events []model.ViolationEvent) error {
	rows := make([][]any, len(events))
	for i, ev := range events {
		rows[i] = []any{ev.ExamID, ev.StudentID, string(ev.Kind), ev.Count, ev.RecordedAt}
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"exam_id", "student_id", "kind", "count", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// InsertViolation writes a single event.
func (r *MonitorRepository) InsertViolation(ctx context.Context, ev model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violations (exam_id, student_id, kind, count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ExamID, ev.StudentID, string(ev.Kind), ev.Count, ev.RecordedAt,
	)
	return err
}

// ViolationCounts returns the highest reported count for each student in the given exam.
func (r *MonitorRepository) ViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, MAX(count)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var sid, count int
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}

// ─── Pub/Sub ────────────────────────────────────────────────────────

// Publish sends v as JSON on the exam's monitor channel.
func (r *MonitorRepository) Publish(ctx context.Context, examID uuid.UUID, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal monitor message: %w", err)
	}
	return r.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), data).Err()
}

// Subscribe attaches to the exam's monitor channel. The caller closes the PubSub.
func (r *MonitorRepository) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return r.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
