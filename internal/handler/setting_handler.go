package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SettingsStore is the live application settings.
type SettingsStore interface {
	Get() model.AppSettings
	Update(ctx context.Context, req model.UpdateSettingsRequest) (model.AppSettings, error)
}

type SettingHandler struct {
	store SettingsStore
}

func NewSettingHandler(store SettingsStore) *SettingHandler {
	return &SettingHandler{store: store}
}

// GetAllSettings godoc
// GET /api/v1/admin/settings
func (h *SettingHandler) GetAllSettings(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"settings": h.store.Get()})
}

// UpdateSettings godoc
// PUT /api/v1/admin/settings
func (h *SettingHandler) UpdateSettings(c *gin.Context) {
	var req model.UpdateSettingsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	settings, err := h.store.Update(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"settings": settings})
}

// GetPublicSettings godoc
// GET /api/v1/public/settings
// Student clients read max_violations and pass_threshold from here.
func (h *SettingHandler) GetPublicSettings(c *gin.Context) {
	response.Success(c, http.StatusOK, h.store.Get())
}
