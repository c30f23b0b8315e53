package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// ExamReader loads an exam header.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// ResultLister pages through graded sessions of an exam.
type ResultLister interface {
	List(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResult, *response.Pagination, error)
}

// ExamHandler handles staff-facing exam endpoints.
type ExamHandler struct {
	exams   ExamReader
	results ResultLister
}

func NewExamHandler(exams ExamReader, results ResultLister) *ExamHandler {
	return &ExamHandler{exams: exams, results: results}
}

// GetExamResults godoc
// GET /api/v1/admin/exams/:id/results
// Paginated graded sessions with violation totals and the pass flag.
func (h *ExamHandler) GetExamResults(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.exams.GetByID(c.Request.Context(), examID); err != nil {
		failExam(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	results, pagination, err := h.results.List(c.Request.Context(), examID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}
