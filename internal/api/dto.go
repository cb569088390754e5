package api

import (
	"encoding/json"

	"github.com/starford/ocrlabel/internal/labelservice"
	"github.com/starford/ocrlabel/internal/models"
)

// SaveRequest is the request body for labeling an image. Index is the index
// returned by /api/next for the image the text belongs to.
type SaveRequest = labelservice.SaveRequest

// JumpRequest is the request body for moving the cursor. Index accepts a
// JSON number or a numeric string.
type JumpRequest struct {
	Index json.Number `json:"index" example:"12" validate:"required"`
}

// SettingsRequest is the request body for the label layout settings.
type SettingsRequest = labelservice.Settings

// NextResponse describes the image to label next.
type NextResponse = labelservice.View

// StatusResponse is the cursor progress summary.
type StatusResponse = models.Progress

// LabelListResponse wraps paginated or searched ledger entries.
type LabelListResponse struct {
	Labels []models.Label `json:"labels" validate:"required"`
	Total  int            `json:"total" example:"42" validate:"required"`
}

// indexPage is the data rendered by templates/index.html.
type indexPage struct {
	*labelservice.View
	Photo   string
	IsPlate bool
}
