//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor/client"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080"
	entryToken     = "E2ETOKEN"
	studentID      = 9001
	questionCount  = 10
)

var (
	baseURL      string
	exam         *model.Exam
	studentToken string
	adminToken   string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// The server and this test must share JWT_SECRET.
	cfg := config.Load()
	auth := service.NewAuthService(cfg)

	var err error
	if studentToken, err = auth.GenerateStudentToken(studentID); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}
	if adminToken, err = auth.GenerateAdminToken(1, []string{string(model.PermissionExamsRead)}); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	if err := seedExam(cfg); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func seedExam(cfg *config.Config) error {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `DELETE FROM exams WHERE entry_token = $1`, entryToken); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	exam = &model.Exam{
		Title:           "E2E Exam",
		Subject:         "Fisika",
		DurationMinutes: 30,
		IsActive:        true,
		EntryToken:      entryToken,
	}
	questions := make([]model.Question, questionCount)
	for i := range questions {
		questions[i] = model.Question{
			QuestionText:  "Question " + strconv.Itoa(i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectOption: i % 4,
			SortOrder:     i + 1,
		}
	}
	return repository.NewExamRepository(pool).Create(ctx, exam, questions)
}

func TestE2EFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := client.New(baseURL, studentToken, client.WithLogger(zerolog.Nop()))

	t.Run("JoinWithWrongToken", func(t *testing.T) {
		_, err := c.FetchPaper(ctx, exam.ID, "WRONG")
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
			t.Fatalf("expected 403, got %v", err)
		}
	})

	t.Run("Join", func(t *testing.T) {
		paper, err := c.FetchPaper(ctx, exam.ID, entryToken)
		if err != nil {
			t.Fatalf("join failed: %v", err)
		}
		if len(paper.Questions) != questionCount {
			t.Fatalf("expected %d questions, got %d", questionCount, len(paper.Questions))
		}
	})

	t.Run("JoinPaperHasNoAnswerKey", func(t *testing.T) {
		body := rawPost(t, "/api/v1/student/exams/"+exam.ID.String()+"/join", `{"entry_token":"`+entryToken+`"}`, studentToken)
		if containsKey(body, "correct_option") {
			t.Fatalf("paper leaked the answer key: %s", body)
		}
	})

	// Questions 0..6 correct, 7..9 blank: {70, 7, 10}.
	answers := map[string]int{}
	for i := 0; i < 7; i++ {
		answers[strconv.Itoa(i)] = i % 4
	}
	want := model.SubmissionSummary{Score: 70, Correct: 7, Total: questionCount}

	t.Run("Submit", func(t *testing.T) {
		got, err := c.Submit(ctx, exam.ID, model.SubmitRequest{Answers: answers, FlaggedIndices: []int{8}})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		if *got != want {
			t.Fatalf("expected %+v, got %+v", want, *got)
		}
	})

	t.Run("SubmitIsIdempotent", func(t *testing.T) {
		got, err := c.Submit(ctx, exam.ID, model.SubmitRequest{Answers: map[string]int{}})
		if err != nil {
			t.Fatalf("resubmit failed: %v", err)
		}
		if *got != want {
			t.Fatalf("resubmit should return the stored result %+v, got %+v", want, *got)
		}
	})

	t.Run("JoinAfterSubmit", func(t *testing.T) {
		_, err := c.FetchPaper(ctx, exam.ID, entryToken)
		if !errors.Is(err, client.ErrAlreadySubmitted) {
			t.Fatalf("expected already submitted, got %v", err)
		}
	})

	t.Run("Results", func(t *testing.T) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/admin/exams/"+exam.ID.String()+"/results", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Results []model.ExamResult `json:"results"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Data.Results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(body.Data.Results))
		}
		if r := body.Data.Results[0]; r.StudentID != studentID || r.Score != 70 || !r.Passed {
			t.Fatalf("unexpected result %+v", r)
		}
	})
}

// ─── helpers ───────────────────────────────────────────────────────────

func rawPost(t *testing.T, path, body, token string) []byte {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, baseURL+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return data
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func containsKey(raw []byte, key string) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	var walk func(any) bool
	walk = func(n any) bool {
		switch x := n.(type) {
		case map[string]any:
			for k, child := range x {
				if k == key || walk(child) {
					return true
				}
			}
		case []any:
			for _, child := range x {
				if walk(child) {
					return true
				}
			}
		}
		return false
	}
	return walk(v)
}
