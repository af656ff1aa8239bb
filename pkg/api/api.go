// Package api defines the contracts for API requests and responses.
// It decouples the API structure from the internal domain models.
package api

import (
	"encoding/json"
	"net/http"
)

// SaveParticipantRequest is the expected body for participant save endpoints.
type SaveParticipantRequest struct {
	FormData           map[string]any `json:"form_data" validate:"required"`
	UploadedFilesMeta  []any          `json:"uploaded_files_metadata,omitempty"`
	WebhookResponses   any            `json:"webhook_responses,omitempty"`
	WebhookSummary     any            `json:"webhook_summary,omitempty"`
	Signatures         any            `json:"signatures,omitempty"`
	EncryptedDocuments any            `json:"encrypted_documents,omitempty"`
	CurrentStep        int            `json:"current_step" validate:"gte=0,lte=20"`
	Status             string         `json:"status,omitempty" validate:"omitempty,oneof=draft in_progress submitted"`
}

// SaveApplicationRequest is the expected body for POST /application.
type SaveApplicationRequest struct {
	ApplicationInfo map[string]any `json:"application_info" validate:"required"`
	Occupants       []any          `json:"occupants,omitempty"`
	CurrentStep     int            `json:"current_step" validate:"gte=0,lte=20"`
	Status          string         `json:"status,omitempty" validate:"omitempty,oneof=draft in_progress submitted"`
}

// SaveResponse reports what a save persisted.
type SaveResponse struct {
	AppID       string `json:"appid"`
	UserID      string `json:"userId"`
	Version     int    `json:"version"`
	StorageMode string `json:"storage_mode"`
	SizeBytes   int    `json:"size_bytes"`
}

// DeleteResponse reports a bulk deletion.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// HealthResponse is the healthz body.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is a standardized error message for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Success writes a JSON response with the given status code.
func Success(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a standardized JSON error response.
func Error(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}
