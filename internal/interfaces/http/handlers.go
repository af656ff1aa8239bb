package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/service/intake"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/api"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// Handlers holds the HTTP handlers over the intake service.
type Handlers struct {
	svc      *intake.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(svc *intake.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.Error(w, http.StatusBadRequest, "VALIDATION", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		api.Error(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return false
	}
	return true
}

// SaveApplication handles POST /api/v1/application.
func (h *Handlers) SaveApplication(w http.ResponseWriter, r *http.Request) {
	var req api.SaveApplicationRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.SaveApplication(r.Context(), intake.ApplicationInput{
		ApplicationInfo: req.ApplicationInfo,
		Occupants:       req.Occupants,
		CurrentStep:     req.CurrentStep,
		Status:          req.Status,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, saveResponse(res))
}

// SaveParticipant handles POST /api/v1/participant.
func (h *Handlers) SaveParticipant(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, false)
}

// SaveParticipantAsNew handles POST /api/v1/participant/new.
func (h *Handlers) SaveParticipantAsNew(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, true)
}

func (h *Handlers) save(w http.ResponseWriter, r *http.Request, asNew bool) {
	var req api.SaveParticipantRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := intake.SaveInput{
		FormData:           req.FormData,
		UploadedFilesMeta:  req.UploadedFilesMeta,
		WebhookResponses:   req.WebhookResponses,
		WebhookSummary:     req.WebhookSummary,
		Signatures:         req.Signatures,
		EncryptedDocuments: req.EncryptedDocuments,
		CurrentStep:        req.CurrentStep,
		Status:             req.Status,
	}

	var res intake.SaveResult
	var err error
	if asNew {
		res, err = h.svc.SaveAsNew(r.Context(), in)
	} else {
		res, err = h.svc.SaveParticipant(r.Context(), in)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, saveResponse(res))
}

// GetParticipant handles GET /api/v1/participant.
func (h *Handlers) GetParticipant(w http.ResponseWriter, r *http.Request) {
	rec, missing, err := h.svc.GetParticipant(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]any{
		"record":  rec,
		"missing": missing,
	})
}

// DeleteParticipant handles DELETE /api/v1/participant.
func (h *Handlers) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteParticipant(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusNoContent, nil)
}

// GetView handles GET /api/v1/application/view.
func (h *Handlers) GetView(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.BuildView(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, v)
}

// GetAllUserData handles GET /api/v1/me/data.
func (h *Handlers) GetAllUserData(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.GetAllUserData(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, data)
}

// DeleteAllUserData handles DELETE /api/v1/me/data.
func (h *Handlers) DeleteAllUserData(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.DeleteAllUserData(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.DeleteResponse{Deleted: deleted})
}

// GetDrafts handles GET /api/v1/me/drafts.
func (h *Handlers) GetDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.svc.DraftMetadata(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, drafts)
}

func saveResponse(res intake.SaveResult) api.SaveResponse {
	return api.SaveResponse{
		AppID:       res.AppID,
		UserID:      res.UserID,
		Version:     res.Version,
		StorageMode: res.StorageMode,
		SizeBytes:   res.SizeBytes,
	}
}

// writeError maps application errors to HTTP status codes.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unexpected error", zap.Error(err))
		api.Error(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}

	switch appErr.Type {
	case appErrors.ErrorTypeValidation:
		api.Error(w, http.StatusBadRequest, string(appErr.Type), appErr.Message)
	case appErrors.ErrorTypeNotFound:
		api.Error(w, http.StatusNotFound, string(appErr.Type), appErr.Message)
	case appErrors.ErrorTypeMissingIdentity:
		api.Error(w, http.StatusUnauthorized, string(appErr.Type), appErr.Message)
	case appErrors.ErrorTypeAuthExpired:
		api.Error(w, http.StatusUnauthorized, string(appErr.Type), appErr.Message)
	case appErrors.ErrorTypeConflict:
		api.Error(w, http.StatusConflict, string(appErr.Type), appErr.Message)
	case appErrors.ErrorTypeRecordTooLarge:
		api.Error(w, http.StatusRequestEntityTooLarge, string(appErr.Type), appErr.Message)
	case appErrors.ErrorTypeUnavailable:
		api.Error(w, http.StatusServiceUnavailable, string(appErr.Type), appErr.Message)
	default:
		logger.Error("unhandled application error", zap.Error(err))
		api.Error(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
