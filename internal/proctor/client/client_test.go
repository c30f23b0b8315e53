package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor/client"
	"github.com/stemsi/exstem-proctor/internal/response"
)

func writeEnvelope(w http.ResponseWriter, status int, data any, code response.ErrCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := response.Response{Data: data}
	if code != "" {
		body.Error = &response.ErrorBody{Code: code, Message: response.GetMessage(code)}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_SubmitSendsAttemptAndDecodesSummary(t *testing.T) {
	examID := uuid.New()
	var gotAuth, gotPath string
	var gotBody map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeEnvelope(w, http.StatusOK, model.SubmissionSummary{Score: 70, Correct: 7, Total: 10}, "")
	}))
	defer srv.Close()

	c := client.New(srv.URL+"/", "tok-123")
	sum, err := c.Submit(context.Background(), examID, model.SubmitRequest{
		Answers:        map[string]int{"0": 2, "3": 1},
		FlaggedIndices: []int{3},
	})
	require.NoError(t, err)

	assert.Equal(t, &model.SubmissionSummary{Score: 70, Correct: 7, Total: 10}, sum)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/api/v1/student/exams/"+examID.String()+"/submit", gotPath)
	assert.JSONEq(t, `{"0":2,"3":1}`, string(gotBody["answers"]))
	assert.JSONEq(t, `[3]`, string(gotBody["flagged_indices"]))
	assert.NotContains(t, gotBody, "score")
}

func TestClient_SubmitEmptyAttemptSendsEmptyCollections(t *testing.T) {
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeEnvelope(w, http.StatusOK, model.SubmissionSummary{Total: 5}, "")
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, "t").Submit(context.Background(), uuid.New(), model.SubmitRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(gotBody["answers"]))
	assert.JSONEq(t, `[]`, string(gotBody["flagged_indices"]))
}

func TestClient_FetchPaper(t *testing.T) {
	examID := uuid.New()
	paper := model.ExamPaper{
		ExamID:          examID,
		Title:           "Fisika",
		DurationMinutes: 90,
		Questions: []model.QuestionForStudent{
			{ID: uuid.New(), QuestionText: "1+1?", Options: []string{"1", "2"}, SortOrder: 1},
		},
	}
	var gotToken model.JoinExamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/student/exams/"+examID.String()+"/join", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotToken)
		writeEnvelope(w, http.StatusOK, paper, "")
	}))
	defer srv.Close()

	got, err := client.New(srv.URL, "t").FetchPaper(context.Background(), examID, "ABCD12")
	require.NoError(t, err)
	assert.Equal(t, "ABCD12", gotToken.EntryToken)
	assert.Equal(t, paper.Title, got.Title)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, []string{"1", "2"}, got.Questions[0].Options)
}

func TestClient_ReportViolation(t *testing.T) {
	var got model.ReportViolationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeEnvelope(w, http.StatusAccepted, obj{"queued": true}, "")
	}))
	defer srv.Close()

	err := client.New(srv.URL, "t").ReportViolation(context.Background(), uuid.New(), model.ViolationFocusLost, 2)
	require.NoError(t, err)
	assert.Equal(t, model.ViolationFocusLost, got.Kind)
	assert.Equal(t, 2, got.Count)
}

type obj map[string]any

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		code      response.ErrCode
		sentinel  error
		retryable bool
	}{
		{http.StatusUnauthorized, response.ErrUnauthorized, client.ErrUnauthorized, false},
		{http.StatusBadRequest, response.ErrInvalidRequest, client.ErrInvalidRequest, false},
		{http.StatusConflict, response.ErrAlreadySubmitted, client.ErrAlreadySubmitted, false},
		{http.StatusForbidden, response.ErrInvalidEntryToken, client.ErrRejected, false},
		{http.StatusTooManyRequests, response.ErrRateLimitExceeded, client.ErrRateLimited, true},
		{http.StatusInternalServerError, response.ErrGradingFailure, client.ErrServer, true},
		{http.StatusInternalServerError, response.ErrPersistenceFailure, client.ErrServer, true},
		{http.StatusBadGateway, "", client.ErrServer, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.code)+"/"+http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code == "" {
					w.WriteHeader(tt.status)
					return
				}
				writeEnvelope(w, tt.status, nil, tt.code)
			}))
			defer srv.Close()

			_, err := client.New(srv.URL, "t").Submit(context.Background(), uuid.New(), model.SubmitRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.retryable, client.IsRetryable(err))

			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestClient_TransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := client.New(url, "t").Submit(context.Background(), uuid.New(), model.SubmitRequest{})
	require.Error(t, err)
	assert.True(t, client.IsRetryable(err))
}

func TestClient_TimeoutIsRetryableButCancelIsNot(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := client.New(srv.URL, "t")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Submit(ctx, uuid.New(), model.SubmitRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, client.IsRetryable(err))

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	_, err = c.Submit(ctx2, uuid.New(), model.SubmitRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, client.IsRetryable(err))
}

func TestIsRetryable_Nil(t *testing.T) {
	assert.False(t, client.IsRetryable(nil))
}

func TestBackoff_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempt := rapid.IntRange(1, 20).Draw(t, "attempt")
		base := time.Duration(rapid.IntRange(1, 1000).Draw(t, "base_ms")) * time.Millisecond
		max := base * time.Duration(rapid.IntRange(1, 64).Draw(t, "max_factor"))

		got := client.Backoff(attempt, base, max)

		exp := base
		for i := 1; i < attempt && exp < max; i++ {
			exp *= 2
		}
		if exp > max {
			exp = max
		}
		if got < exp || got > exp+exp/2 {
			t.Fatalf("Backoff(%d, %v, %v) = %v, want within [%v, %v]", attempt, base, max, got, exp, exp+exp/2)
		}
	})
}

func TestBackoff_ZeroAttempt(t *testing.T) {
	assert.Zero(t, client.Backoff(0, time.Second, time.Minute))
}
