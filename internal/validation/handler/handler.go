// Package handler is the thin HTTP layer over validation and enrollment.
// Auth and tenancy guards sit in front of this service and are out of scope
// here.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"retinagate/internal/blob"
	retinaservice "retinagate/internal/retina/service"
	retinastore "retinagate/internal/retina/store"
	"retinagate/internal/validation/service"
)

// maxUploadBytes bounds multipart image uploads.
const maxUploadBytes = 10 << 20

// Validator runs a validation request to a terminal outcome.
type Validator interface {
	Validate(ctx context.Context, orgID, filename string, image []byte, contentType string) service.Result
}

// Handler wires validation and enrollment endpoints.
type Handler struct {
	validator Validator
	retinas   *retinaservice.Service
	logger    *slog.Logger
}

// New constructs the handler.
func New(validator Validator, retinas *retinaservice.Service, logger *slog.Logger) *Handler {
	return &Handler{
		validator: validator,
		retinas:   retinas,
		logger:    logger.With("component", "handler"),
	}
}

// Register mounts all endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/validation/retina", h.HandleValidate)
	r.Route("/storage/organizations/{orgID}/employees/{employeeID}/retinas", func(r chi.Router) {
		r.Post("/", h.HandleUploadRetina)
		r.Get("/", h.HandleListRetinas)
		r.Get("/{retinaID}", h.HandleGetRetina)
		r.Delete("/{retinaID}", h.HandleDeleteRetina)
	})
}

type validationResponse struct {
	Status             string  `json:"status"`
	MatchingEmployeeID *string `json:"matchingEmployeeId,omitempty"`
	Similarity         float64 `json:"similarity,omitempty"`
	Message            string  `json:"message,omitempty"`
}

// HandleValidate handles POST /validation/retina. Every terminal outcome is
// a 200 with a typed status so callers can tell "no answer" from "answered
// no"; only malformed requests are 4xx.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	file, header, orgID, ok := h.readUpload(w, r, "organizationId")
	if !ok {
		return
	}

	result := h.validator.Validate(ctx, orgID, header.filename, file, header.contentType)

	h.logger.InfoContext(ctx, "validation request finished",
		"org_id", orgID, "outcome", result.Outcome)

	switch result.Outcome {
	case service.OutcomeMatched:
		writeJSON(w, http.StatusOK, validationResponse{
			Status:             "success",
			MatchingEmployeeID: result.MatchingEmployeeID,
			Similarity:         result.Similarity,
		})
	case service.OutcomeNoMatch:
		writeJSON(w, http.StatusOK, validationResponse{
			Status:     "no_match",
			Similarity: result.Similarity,
			Message:    result.Message,
		})
	case service.OutcomeNoCandidates:
		writeJSON(w, http.StatusOK, validationResponse{Status: "no_candidates", Message: result.Message})
	case service.OutcomeTimeout:
		writeJSON(w, http.StatusOK, validationResponse{Status: "timeout", Message: result.Message})
	default:
		writeJSON(w, http.StatusBadGateway, validationResponse{
			Status:  "dispatch_failed",
			Message: result.Message,
		})
	}
}

// HandleUploadRetina handles retina photo enrollment.
func (h *Handler) HandleUploadRetina(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, "orgID")
	employeeID := chi.URLParam(r, "employeeID")

	file, header, _, ok := h.readUpload(w, r, "")
	if !ok {
		return
	}

	img, err := h.retinas.Upload(ctx, orgID, employeeID, header.filename, file, header.contentType)
	if err != nil {
		h.logger.ErrorContext(ctx, "retina upload failed",
			"org_id", orgID, "employee_id", employeeID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to upload retina photo")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": img.ID, "path": img.Path})
}

// HandleListRetinas lists an employee's photos.
func (h *Handler) HandleListRetinas(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	images, err := h.retinas.List(r.Context(), employeeID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list retinas failed", "employee_id", employeeID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list retina photos")
		return
	}

	type item struct {
		ID        string `json:"id"`
		Path      string `json:"path"`
		CreatedAt string `json:"createdAt"`
	}
	out := make([]item, 0, len(images))
	for _, img := range images {
		out = append(out, item{ID: img.ID, Path: img.Path, CreatedAt: img.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetRetina streams one photo.
func (h *Handler) HandleGetRetina(w http.ResponseWriter, r *http.Request) {
	retinaID := chi.URLParam(r, "retinaID")

	data, err := h.retinas.Download(r.Context(), retinaID)
	if err != nil {
		if errors.Is(err, retinastore.ErrNotFound) || errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "retina photo not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get retina failed", "retina_id", retinaID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve retina photo")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleDeleteRetina deletes one photo.
func (h *Handler) HandleDeleteRetina(w http.ResponseWriter, r *http.Request) {
	retinaID := chi.URLParam(r, "retinaID")

	if err := h.retinas.Delete(r.Context(), retinaID); err != nil {
		if errors.Is(err, retinastore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "retina photo not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "delete retina failed", "retina_id", retinaID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete retina photo")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "retina photo deleted successfully"})
}

type uploadMeta struct {
	filename    string
	contentType string
}

// readUpload parses the multipart form and returns the file plus an optional
// extra form field. Writes the error response itself when returning !ok.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, extraField string) ([]byte, uploadMeta, string, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, uploadMeta{}, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return nil, uploadMeta{}, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return nil, uploadMeta{}, "", false
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusBadRequest, "file too large")
		return nil, uploadMeta{}, "", false
	}

	extra := ""
	if extraField != "" {
		extra = r.FormValue(extraField)
		if extra == "" {
			writeError(w, http.StatusBadRequest, extraField+" is required")
			return nil, uploadMeta{}, "", false
		}
	}

	meta := uploadMeta{
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
	}
	return data, meta, extra, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
