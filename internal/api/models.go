package api

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/phrazzld/bookrender/internal/domain"
)

// CreateRenderRequest is the payload of POST /api/renders.
type CreateRenderRequest struct {
	// Format names a configured output format, e.g. "pdf".
	// Empty means the server's default format.
	Format string `json:"format" validate:"omitempty,max=32,alphanum"`

	// Book is the book description: title, subtitle and items.
	Book json.RawMessage `json:"book" validate:"required"`
}

// CreateRenderResponse is returned when a task was created.
type CreateRenderResponse struct {
	ID        uuid.UUID        `json:"id"`
	State     domain.TaskState `json:"state"`
	StatusURL string           `json:"status_url"`
}

// LegacyRenderResponse is the /download-book reply to command=render.
type LegacyRenderResponse struct {
	CollectionID uuid.UUID `json:"collection_id"`
}

// HealthResponse is the /health reply.
type HealthResponse struct {
	Status string `json:"status"`
}
