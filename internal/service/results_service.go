package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const maxPerPage = 100

// ResultStore lists graded sessions.
type ResultStore interface {
	ListResults(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.ExamResult, int, error)
}

// SettingsReader exposes the live settings.
type SettingsReader interface {
	Get() model.AppSettings
}

// ResultsService serves the admin results table.
type ResultsService struct {
	store    ResultStore
	settings SettingsReader
}

// NewResultsService creates a new ResultsService.
func NewResultsService(store ResultStore, settings SettingsReader) *ResultsService {
	return &ResultsService{store: store, settings: settings}
}

// List returns one page of results. Passed uses the current pass threshold.
func (s *ResultsService) List(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResult, *response.Pagination, error) {
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	p := response.NewPagination(page, perPage, 0)

	results, total, err := s.store.ListResults(ctx, examID, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}

	threshold := s.settings.Get().PassThreshold
	for i := range results {
		results[i].Passed = results[i].Score >= threshold
	}
	if results == nil {
		results = []model.ExamResult{}
	}

	return results, response.NewPagination(p.Page, p.PerPage, total), nil
}
