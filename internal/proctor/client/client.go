// Package client is the student-side HTTP binding of the exam session API.
// It never sends or receives answer-key data.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const defaultTimeout = 15 * time.Second

// Client calls the exam server on behalf of one authenticated student.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the transport timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger. Defaults to zerolog.Nop().
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "exam_client").Logger() }
}

// New creates a client for the server at baseURL (scheme and host, no /api suffix).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope[T any] struct {
	Data  T                   `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

// FetchPaper joins the exam with its entry token and returns the student paper.
func (c *Client) FetchPaper(ctx context.Context, examID uuid.UUID, entryToken string) (*model.ExamPaper, error) {
	var paper model.ExamPaper
	body := model.JoinExamRequest{EntryToken: entryToken}
	if err := c.post(ctx, c.examPath(examID, "join"), body, &paper); err != nil {
		return nil, fmt.Errorf("join exam: %w", err)
	}
	return &paper, nil
}

// Submit sends the attempt and returns the server-graded summary.
func (c *Client) Submit(ctx context.Context, examID uuid.UUID, req model.SubmitRequest) (*model.SubmissionSummary, error) {
	if req.Answers == nil {
		req.Answers = map[string]int{}
	}
	if req.FlaggedIndices == nil {
		req.FlaggedIndices = []int{}
	}
	var summary model.SubmissionSummary
	if err := c.post(ctx, c.examPath(examID, "submit"), req, &summary); err != nil {
		return nil, fmt.Errorf("submit exam: %w", err)
	}
	return &summary, nil
}

// ReportViolation forwards one counted violation to the audit trail.
func (c *Client) ReportViolation(ctx context.Context, examID uuid.UUID, kind model.ViolationKind, count int) error {
	body := model.ReportViolationRequest{Kind: kind, Count: count}
	if err := c.post(ctx, c.examPath(examID, "violations"), body, nil); err != nil {
		return fmt.Errorf("report violation: %w", err)
	}
	return nil
}

func (c *Client) examPath(examID uuid.UUID, action string) string {
	return fmt.Sprintf("%s/api/v1/student/exams/%s/%s", c.baseURL, examID, action)
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Exam server call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env envelope[json.RawMessage]
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	env := envelope[json.RawMessage]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
