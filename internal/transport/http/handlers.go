// Package httptransport is the thin HTTP layer over the article service and
// the audit read/replay surface. Handlers delegate to services and never
// embed capture logic.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chronicle/internal/article"
	"chronicle/pkg/audit"
	"chronicle/pkg/audit/transition"
	"chronicle/pkg/platform/sentinel"
	"chronicle/pkg/requestcontext"
)

// Handler wires the demo endpoints to their services.
type Handler struct {
	articles *article.Service
	reader   audit.Reader
	logger   *slog.Logger
}

func NewHandler(articles *article.Service, reader audit.Reader, logger *slog.Logger) *Handler {
	return &Handler{
		articles: articles,
		reader:   reader,
		logger:   logger,
	}
}

type articleRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Secret    string `json:"secret"`
	Published *bool  `json:"published"`
}

type articleResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
}

func toResponse(a *article.Article) articleResponse {
	return articleResponse{
		ID:        a.ID,
		Title:     a.Title,
		Body:      a.Body,
		Published: a.Published,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	a, err := h.articles.Create(r.Context(), req.Title, req.Body, req.Secret)
	if err != nil {
		h.serverError(w, r, "create article", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(a))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.articles.Get(chi.URLParam(r, "id"))
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "get article", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.articles.Update(r.Context(), chi.URLParam(r, "id"), fields)
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "update article", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.articles.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "delete article", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	a, err := h.articles.Restore(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "restore article", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

type replayRequest struct {
	RecordID  string `json:"record_id"`
	Direction string `json:"direction"`
}

// handleReplay applies one stored record's old or new side back onto the
// live article and returns the resulting state. Redacted or incompatible
// records are refused with 409.
func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotImplemented, "audit driver does not support reads")
		return
	}

	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	recordID, err := uuid.Parse(req.RecordID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record_id")
		return
	}
	dir := transition.ToNew
	if req.Direction == "old" {
		dir = transition.ToOld
	}

	id := chi.URLParam(r, "id")
	a, err := h.articles.Get(id)
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "get article", err)
		return
	}

	records, err := h.reader.ListByEntity(r.Context(), a.AuditType(), id)
	if err != nil {
		h.serverError(w, r, "list audit records", err)
		return
	}
	var rec *audit.Record
	for i := range records {
		if records[i].ID == recordID {
			rec = &records[i]
			break
		}
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "audit record not found")
		return
	}

	replayed, err := h.articles.Replay(id, rec, dir)
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toResponse(replayed))
}

func (h *Handler) handleListAudits(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotImplemented, "audit driver does not support reads")
		return
	}

	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if entityType == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "entity_type and entity_id are required")
		return
	}

	records, err := h.reader.ListByEntity(r.Context(), entityType, entityID)
	if err != nil {
		h.serverError(w, r, "list audit records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) handleRecentAudits(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotImplemented, "audit driver does not support reads")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.reader.ListRecent(r.Context(), limit)
	if err != nil {
		h.serverError(w, r, "list recent audit records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed",
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
