package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// Grader grades and stores a submitted attempt.
type Grader interface {
	Submit(ctx context.Context, examID uuid.UUID, studentID int, req model.SubmitRequest) (*model.SubmissionSummary, error)
}

// SubmissionHandler serves the server half of the submission protocol.
type SubmissionHandler struct {
	grader Grader
}

func NewSubmissionHandler(grader Grader) *SubmissionHandler {
	return &SubmissionHandler{grader: grader}
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades the answers against the stored key. The body carries answers only;
// the response is {score, correct, total}.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized)
		return
	}

	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidRequest, fields)
		return
	}

	summary, err := h.grader.Submit(c.Request.Context(), examID, claims.UserID, req)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, summary)
	case errors.Is(err, service.ErrInvalidAnswers):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest)
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrGradingFailure):
		response.Fail(c, http.StatusInternalServerError, response.ErrGradingFailure)
	case errors.Is(err, service.ErrPersistenceFailure):
		response.Fail(c, http.StatusInternalServerError, response.ErrPersistenceFailure)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
