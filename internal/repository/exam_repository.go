package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID. Returns pgx.ErrNoRows when absent.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, subject, duration_minutes, is_active, entry_token
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Subject, &e.DurationMinutes, &e.IsActive, &e.EntryToken)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts an exam and its questions in one transaction.
// IDs left as uuid.Nil are generated.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam, questions []model.Question) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO exams (id, title, subject, duration_minutes, is_active, entry_token)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Title, e.Subject, e.DurationMinutes, e.IsActive, e.EntryToken,
	); err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.ExamID = e.ID
		batch.Queue(
			`INSERT INTO questions (id, exam_id, question_text, options, correct_option, image_url, sort_order)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			q.ID, q.ExamID, q.QuestionText, q.Options, q.CorrectOption, q.ImageURL, q.SortOrder,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}
