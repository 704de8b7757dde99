package handlers

import (
	"errors"
	"net/http"

	"github.com/ndewijer/Holdings-Import-Backend/internal/api/request"
	"github.com/ndewijer/Holdings-Import-Backend/internal/api/response"
	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
	"github.com/ndewijer/Holdings-Import-Backend/internal/service"
	"github.com/ndewijer/Holdings-Import-Backend/internal/validation"
)

// ImportHandler handles import session HTTP requests.
type ImportHandler struct {
	sessionService *service.SessionService
	maxUploadBytes int64
	logger         *logging.Logger
}

// NewImportHandler creates a new ImportHandler. Upload bodies larger than
// maxUploadBytes are rejected.
func NewImportHandler(sessionService *service.SessionService, maxUploadBytes int64, logger *logging.Logger) *ImportHandler {
	if logger == nil {
		logger = logging.NewSilentLogger()
	}
	return &ImportHandler{
		sessionService: sessionService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("http.imports"),
	}
}

// CreateSession handles POST requests to start an import session.
//
// Endpoint: POST /api/owners/{uuid}/imports
// Response: 201 Created with service.ImportSession
func (h *ImportHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.sessionService.Create(ownerID(r))
	response.RespondJSON(w, http.StatusCreated, session)
}

// GetSession handles GET requests for the current state of a session:
// its file names, preview and pending change summary.
//
// Endpoint: GET /api/owners/{uuid}/imports/{sessionId}
// Response: 200 OK with service.ImportSession
// Error: 404 Not Found if the session does not exist or expired
func (h *ImportHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.Get(ownerID(r), sessionID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, session)
}

// AddFiles handles POST requests adding CSV exports to a session. It accepts
// multipart/form-data with one or more "files" parts, or a JSON
// request.AddFilesRequest. The preview is rebuilt from every file of the session.
//
// Endpoint: POST /api/owners/{uuid}/imports/{sessionId}/files
// Response: 200 OK with service.ImportSession
// Error: 400 Bad Request if the upload is malformed or a file is not an acceptable CSV
// Error: 404 Not Found if the session does not exist or expired
// Error: 413 Request Entity Too Large if the body exceeds the upload limit
func (h *ImportHandler) AddFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	files, err := h.readFiles(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(w, http.StatusRequestEntityTooLarge, "upload too large", err.Error())
			return
		}
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateUploadedFiles(files); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	session, err := h.sessionService.AddFiles(ownerID(r), sessionID(r), files)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, session)
}

// Diff handles POST requests computing the change summary of the session
// against the stored portfolio. The summary becomes the one Apply commits.
//
// Endpoint: POST /api/owners/{uuid}/imports/{sessionId}/diff
// Response: 200 OK with model.ChangeSummary
// Error: 400 Bad Request if the session has no files
// Error: 404 Not Found if the session does not exist or expired
// Error: 500 Internal Server Error if the stored portfolio cannot be read
func (h *ImportHandler) Diff(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sessionService.Diff(r.Context(), ownerID(r), sessionID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, summary)
}

// Apply handles POST requests committing the session's pending change summary.
// Requires the internal API key and a time token.
//
// Endpoint: POST /api/owners/{uuid}/imports/{sessionId}/apply
// Response: 200 OK with model.ImportHistoryRecord
// Error: 404 Not Found if the session does not exist or expired
// Error: 409 Conflict if no diff is pending or the portfolio changed since the diff
// Error: 500 Internal Server Error if a step failed; nothing is applied
func (h *ImportHandler) Apply(w http.ResponseWriter, r *http.Request) {
	record, err := h.sessionService.Apply(r.Context(), ownerID(r), sessionID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, record)
}

// CancelSession handles DELETE requests discarding a session. The stored
// portfolio is never touched.
//
// Endpoint: DELETE /api/owners/{uuid}/imports/{sessionId}
// Response: 204 No Content
// Error: 404 Not Found if the session does not exist or expired
func (h *ImportHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.Cancel(ownerID(r), sessionID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusNoContent, nil)
}

func (h *ImportHandler) readFiles(r *http.Request) ([]model.UploadedFile, error) {
	if request.IsMultipart(r) {
		return request.ReadMultipartFiles(r, h.maxUploadBytes)
	}
	req, err := parseJSON[request.AddFilesRequest](r)
	if err != nil {
		return nil, err
	}
	return req.ToUploadedFiles(), nil
}

func (h *ImportHandler) respondError(w http.ResponseWriter, err error) {
	var stepErr *apperrors.ApplyStepError

	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		response.RespondError(w, http.StatusNotFound, apperrors.ErrSessionNotFound.Error(), err.Error())
	case errors.Is(err, apperrors.ErrSessionOwnerMismatch):
		response.RespondError(w, http.StatusForbidden, apperrors.ErrSessionOwnerMismatch.Error(), err.Error())
	case errors.Is(err, apperrors.ErrNoFiles), errors.Is(err, apperrors.ErrEmptyFile):
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.Is(err, apperrors.ErrNoPendingDiff), errors.Is(err, apperrors.ErrStaleChangeSummary):
		response.RespondError(w, http.StatusConflict, err.Error(), "")
	case errors.As(err, &stepErr):
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrImportNotApplied.Error(),
			stepErr.Step+": "+stepErr.Err.Error())
	case errors.Is(err, apperrors.ErrDuplicateSymbol):
		h.logger.Error().Err(err).Msg("duplicate symbol reached the diff engine")
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToComputeDiff.Error(), err.Error())
	default:
		h.logger.Error().Err(err).Msg("import request failed")
		response.RespondError(w, http.StatusInternalServerError, "internal server error", err.Error())
	}
}
