package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/replygate/internal/api"
	"github.com/cloo-solutions/replygate/internal/domain"
)

type SettingsService interface {
	Get(ctx context.Context) (domain.AISettings, error)
	Update(ctx context.Context, settings domain.AISettings) (domain.AISettings, error)
}

type SettingsHandler struct {
	svc SettingsService
}

func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Get(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, settings)
}

// Put replaces the settings. Fields missing from the body keep their current values.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	current, err := h.svc.Get(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.svc.Update(r.Context(), current)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, saved)
}
