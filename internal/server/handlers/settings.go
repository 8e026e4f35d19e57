package handlers

import (
	"context"

	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/workspace"
)

// SettingsHandler handles completion settings. Responses carry the redacted
// key; archive exports still hold it in clear.
type SettingsHandler struct {
	Svc *workspace.Service
}

// GetSettingsRequest is empty.
type GetSettingsRequest struct{}

// GetSettings returns the redacted settings.
func (h *SettingsHandler) GetSettings(ctx context.Context, req GetSettingsRequest) (*models.AISettings, error) {
	s := h.Svc.Settings().Redacted()
	return &s, nil
}

// UpdateSettings replaces the settings. Sending the redacted key back keeps
// the stored one.
func (h *SettingsHandler) UpdateSettings(ctx context.Context, req models.AISettings) (*models.AISettings, error) {
	s, err := h.Svc.SaveSettings(ctx, req)
	if err != nil {
		return nil, err
	}
	s = s.Redacted()
	return &s, nil
}
