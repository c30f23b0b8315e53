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

// ExamJoiner hands a student the paper for an exam.
type ExamJoiner interface {
	Join(ctx context.Context, examID uuid.UUID, studentID int, entryToken string) (*model.ExamPaper, error)
}

// ViolationReporter records a proctoring signal for the audit trail.
type ViolationReporter interface {
	Report(ctx context.Context, examID uuid.UUID, studentID int, req model.ReportViolationRequest) error
}

// StudentPortalHandler handles student-facing endpoints (joining, violations).
type StudentPortalHandler struct {
	exams      ExamJoiner
	violations ViolationReporter
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(exams ExamJoiner, violations ViolationReporter) *StudentPortalHandler {
	return &StudentPortalHandler{
		exams:      exams,
		violations: violations,
	}
}

// JoinExam godoc
// POST /api/v1/student/exams/:exam_id/join
// Validates the entry token and returns the paper without the answer key.
func (h *StudentPortalHandler) JoinExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.JoinExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	paper, err := h.exams.Join(c.Request.Context(), examID, claims.UserID, req.EntryToken)
	if err != nil {
		failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// ReportViolation godoc
// POST /api/v1/student/exams/:exam_id/violations
func (h *StudentPortalHandler) ReportViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.violations.Report(c.Request.Context(), examID, claims.UserID, req); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"recorded": true})
}

// ─── helpers ───────────────────────────────────────────────────────────

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// failExam maps exam lookup and join errors to API codes.
func failExam(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusForbidden, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrInvalidEntryToken):
		response.Fail(c, http.StatusForbidden, response.ErrInvalidEntryToken)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
