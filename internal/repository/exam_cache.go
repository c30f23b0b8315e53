package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamCache keeps exam papers, answer keys and join timestamps in Redis.
// The answer key copy is server-side only and expires after ttl.
type ExamCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewExamCache creates a new ExamCache.
func NewExamCache(rdb *redis.Client, ttl time.Duration) *ExamCache {
	return &ExamCache{rdb: rdb, ttl: ttl}
}

func (c *ExamCache) getJSON(ctx context.Context, key string, v any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (c *ExamCache) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

func (c *ExamCache) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	var paper model.ExamPaper
	if err := c.getJSON(ctx, config.CacheKey.ExamPaperKey(examID.String()), &paper); err != nil {
		return nil, err
	}
	return &paper, nil
}

func (c *ExamCache) SetPaper(ctx context.Context, paper *model.ExamPaper) error {
	return c.setJSON(ctx, config.CacheKey.ExamPaperKey(paper.ExamID.String()), paper)
}

func (c *ExamCache) GetAnswerKey(ctx context.Context, examID uuid.UUID) ([]model.GradingQuestion, error) {
	var key []model.GradingQuestion
	if err := c.getJSON(ctx, config.CacheKey.ExamAnswerKey(examID.String()), &key); err != nil {
		return nil, err
	}
	return key, nil
}

func (c *ExamCache) SetAnswerKey(ctx context.Context, examID uuid.UUID, key []model.GradingQuestion) error {
	return c.setJSON(ctx, config.CacheKey.ExamAnswerKey(examID.String()), key)
}

// MarkJoined stores the join time unless one is already recorded, so a
// rejoin after a reload keeps the original start.
func (c *ExamCache) MarkJoined(ctx context.Context, examID uuid.UUID, studentID int, at time.Time) error {
	key := config.CacheKey.StudentExamJoinKey(examID.String(), studentID)
	return c.rdb.SetNX(ctx, key, at.Unix(), 24*time.Hour).Err()
}

// JoinedAt returns the recorded join time.
func (c *ExamCache) JoinedAt(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, error) {
	val, err := c.rdb.Get(ctx, config.CacheKey.StudentExamJoinKey(examID.String(), studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid join time in cache: %w", err)
	}
	return time.Unix(unix, 0), nil
}
