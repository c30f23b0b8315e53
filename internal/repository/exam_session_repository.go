package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamSessionRepository handles graded sessions and their answers.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, student_id, started_at, finished_at, total_questions, correct_answers, score`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StartedAt, &s.FinishedAt,
		&s.TotalQuestions, &s.CorrectAnswers, &s.Score)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByExamAndStudent retrieves the session for a specific exam-student
// combination. Returns pgx.ErrNoRows when the student has not submitted.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	))
}

// SaveGraded writes the session and all of its answers in one transaction.
// If the student already has a session the stored one is returned with
// created=false and nothing is written.
func (r *ExamSessionRepository) SaveGraded(ctx context.Context, s *model.ExamSession, answers []model.StudentAnswer) (*model.ExamSession, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO exam_sessions (id, exam_id, student_id, started_at, finished_at, total_questions, correct_answers, score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id`,
		s.ID, s.ExamID, s.StudentID, s.StartedAt, s.FinishedAt,
		s.TotalQuestions, s.CorrectAnswers, s.Score,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+`
			 FROM exam_sessions
			 WHERE exam_id = $1 AND student_id = $2`, s.ExamID, s.StudentID,
		))
		if err != nil {
			return nil, false, fmt.Errorf("load existing session: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}

	if len(answers) > 0 {
		rows := make([][]any, len(answers))
		for i, a := range answers {
			rows[i] = []any{id, a.QuestionID, a.SelectedAnswer, a.IsFlagged}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"student_answers"},
			[]string{"session_id", "question_id", "selected_answer", "is_flagged"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return nil, false, fmt.Errorf("copy answers: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return s, true, nil
}

// ListResults retrieves graded sessions of an exam with their violation totals.
func (r *ExamSessionRepository) ListResults(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.ExamResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT es.id, es.student_id, es.score, es.correct_answers, es.total_questions,
		        es.started_at, es.finished_at, COALESCE(v.total, 0)
		 FROM exam_sessions es
		 LEFT JOIN (
		     SELECT student_id, MAX(count) AS total
		     FROM exam_violations
		     WHERE exam_id = $1
		     GROUP BY student_id
		 ) v ON v.student_id = es.student_id
		 WHERE es.exam_id = $1
		 ORDER BY es.score DESC, es.finished_at ASC
		 LIMIT $2 OFFSET $3`,
		examID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := make([]model.ExamResult, 0, limit)
	for rows.Next() {
		var res model.ExamResult
		if err := rows.Scan(&res.SessionID, &res.StudentID, &res.Score, &res.CorrectAnswers,
			&res.TotalQuestions, &res.StartedAt, &res.FinishedAt, &res.Violations); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
