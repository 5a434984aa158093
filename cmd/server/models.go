package main

import (
	"time"

	"github.com/modelkit/contrast/contrast"
)

// API Request and Response Models

// CreateProjectRequest represents the request body for creating a project
type CreateProjectRequest struct {
	Name string `json:"name" example:"Penguin Morphometrics"`
}

// ProjectResponse represents a project in API responses
type ProjectResponse struct {
	ID        string    `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name      string    `json:"name" example:"Penguin Morphometrics"`
	CreatedAt time.Time `json:"createdAt" example:"2024-01-15T10:30:00Z"`
	UpdatedAt time.Time `json:"updatedAt" example:"2024-01-15T10:30:00Z"`
}

// UploadModelRequest represents the request body for uploading a fitted
// model summary. Coefficient names, estimates, and standard errors come
// straight from the fitting library's summary table.
type UploadModelRequest struct {
	Name         string                 `json:"name" example:"mass ~ species + sex"`
	Family       string                 `json:"family" example:"lmer"`
	Coefficients []contrast.Coefficient `json:"coefficients"`
}

// ModelResponse represents a stored model summary in API responses
type ModelResponse struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Family       string                 `json:"family"`
	Coefficients []contrast.Coefficient `json:"coefficients"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// CompareRequest represents the request body for comparing coefficients.
// Either base+comparison (single contrast) or allPairs must be supplied.
// Level defaults to 0.95; screens asks for the project's active screens to
// be run against each result.
type CompareRequest struct {
	ProjectID  string  `json:"projectId" example:"123e4567-e89b-12d3-a456-426614174000"`
	ModelID    string  `json:"modelId" example:"model-123"`
	Base       string  `json:"base,omitempty" example:"speciesAdelie"`
	Comparison string  `json:"comparison,omitempty" example:"speciesGentoo"`
	Level      float64 `json:"level,omitempty" example:"0.95"`
	AllPairs   bool    `json:"allPairs,omitempty"`
	Screens    bool    `json:"screens,omitempty"`
}

// PairResponse represents one all-pairs entry. Error is set when that pair
// failed; the remaining pairs are still reported.
type PairResponse struct {
	Base       string               `json:"base"`
	Comparison string               `json:"comparison"`
	Result     *contrast.Comparison `json:"result,omitempty"`
	Screens    []ScreenEvalResponse `json:"screens,omitempty"`
	Error      *string              `json:"error,omitempty"`
}

// ScreenEvalResponse represents a single screen evaluation outcome
type ScreenEvalResponse struct {
	ScreenID   string  `json:"screenId" example:"screen-123"`
	ScreenName string  `json:"screenName" example:"Excludes Zero"`
	Matched    bool    `json:"matched" example:"true"`
	Error      *string `json:"error,omitempty"`
}

// CreateScreenRequest represents the request body for creating a screen
type CreateScreenRequest struct {
	Name       string `json:"name" example:"Excludes Zero"`
	Expression string `json:"expression" example:"lower > 0.0 || upper < 0.0"`
	Active     bool   `json:"active" example:"true"`
}

// UpdateScreenRequest represents the request body for updating a screen
type UpdateScreenRequest struct {
	Name       string `json:"name" example:"Excludes Zero"`
	Expression string `json:"expression" example:"lower > 0.0 || upper < 0.0"`
	Active     bool   `json:"active" example:"true"`
}

// ScreenResponse represents a screen in API responses
type ScreenResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid model summary"`
	Details string `json:"details,omitempty"`
}
