package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/spoolhub-backend/api/middleware"
	"github.com/angelmondragon/spoolhub-backend/api/responses"
	"github.com/angelmondragon/spoolhub-backend/api/validators"
	"github.com/angelmondragon/spoolhub-backend/internal/uploads"
	pkgerrors "github.com/angelmondragon/spoolhub-backend/pkg/errors"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
)

const maxModelHintLen = 100

type startProcessingRequest struct {
	ModelHint string `json:"modelHint" validate:"omitempty,max=100"`
}

// UploadSessionCreate starts a mobile handoff session for the caller.
func UploadSessionCreate(svc uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r, svc, logg)
		if !ok {
			return
		}
		created, err := svc.CreateSession(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// UploadBulk stores a batch of photos under a new session owned by the caller.
func UploadBulk(svc uploads.Service, limits validators.ImageLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r, svc, logg)
		if !ok {
			return
		}
		files, err := validators.ParseImages(r, limits)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.BulkUpload(r.Context(), ownerID, files)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// UploadSessionInfo is read by the paired mobile page; the token is the credential.
func UploadSessionInfo(svc uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := requireToken(w, r, svc, logg)
		if !ok {
			return
		}
		info, err := svc.SessionInfo(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

// UploadSessionAddImages accepts photos from the paired mobile device.
func UploadSessionAddImages(svc uploads.Service, limits validators.ImageLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := requireToken(w, r, svc, logg)
		if !ok {
			return
		}
		files, err := validators.ParseImages(r, limits)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AddImages(r.Context(), token, files)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UploadSessionProcess starts (or re-attaches to) extraction for a session.
func UploadSessionProcess(svc uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r, svc, logg)
		if !ok {
			return
		}
		token, ok := requireToken(w, r, svc, logg)
		if !ok {
			return
		}

		var payload startProcessingRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		model := validators.SanitizeString(payload.ModelHint, maxModelHintLen)
		result, err := svc.StartProcessing(r.Context(), ownerID, token, model)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Processing {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

func UploadSessionStatus(svc uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r, svc, logg)
		if !ok {
			return
		}
		token, ok := requireToken(w, r, svc, logg)
		if !ok {
			return
		}
		status, err := svc.GetStatus(r.Context(), ownerID, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func UploadSessionCancel(svc uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r, svc, logg)
		if !ok {
			return
		}
		token, ok := requireToken(w, r, svc, logg)
		if !ok {
			return
		}
		result, err := svc.Cancel(r.Context(), ownerID, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func UploadSessionDelete(svc uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r, svc, logg)
		if !ok {
			return
		}
		token, ok := requireToken(w, r, svc, logg)
		if !ok {
			return
		}
		if err := svc.DeleteSession(r.Context(), ownerID, token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// requireOwner resolves the authenticated user; it writes the error response itself.
func requireOwner(w http.ResponseWriter, r *http.Request, svc uploads.Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "uploads service unavailable"))
		return uuid.Nil, false
	}
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return ownerID, true
}

func requireToken(w http.ResponseWriter, r *http.Request, svc uploads.Service, logg *logger.Logger) (string, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "uploads service unavailable"))
		return "", false
	}
	token := strings.TrimSpace(chi.URLParam(r, "token"))
	if token == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session token required"))
		return "", false
	}
	return token, true
}
