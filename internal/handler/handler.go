// Package handler exposes the session tracker to a UI process as a JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examstats/internal/catalog"
	"github.com/pavelanni/examstats/internal/codec"
	"github.com/pavelanni/examstats/internal/gateway"
	"github.com/pavelanni/examstats/internal/i18n"
	"github.com/pavelanni/examstats/internal/tracker"
)

const maxSnapshotBytes = 32 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	tracker  *tracker.Tracker
	gateway  *gateway.Gateway
	catalog  *catalog.Catalog
	validate *requestValidator
}

// New creates a new Handler. cat may be nil.
func New(t *tracker.Tracker, g *gateway.Gateway, cat *catalog.Catalog) *Handler {
	rv, err := newRequestValidator()
	if err != nil {
		panic("handler: register validation translations: " + err.Error())
	}
	return &Handler{tracker: t, gateway: g, catalog: cat, validate: rv}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.handleStartSession)
	r.Post("/sessions/end", h.handleEndSession)
	r.Get("/sessions/open", h.handleOpenSession)
	r.Route("/questions/{qid}", func(r chi.Router) {
		r.Post("/attempts", h.handleAttempt)
		r.Post("/reset", h.handleReset)
		r.Post("/preview", h.handlePreview)
		r.Post("/time", h.handleTime)
	})
	r.Get("/exams/{examID}/questions/{qid}/answered", h.handleAnswered)
	r.Get("/rollups", h.handleRollups)
	r.Get("/rollups/{examID}", h.handleRollup)
	r.Get("/snapshot", h.handleExport)
	r.Post("/snapshot", h.handleImport)
}

type startRequest struct {
	ExamID    string `json:"examId" validate:"required,max=128"`
	ExamLabel string `json:"examLabel" validate:"max=512"`
}

type attemptRequest struct {
	Answers          []string `json:"answers" validate:"dive,required"`
	CorrectAnswerKey []string `json:"correctAnswerKey" validate:"omitempty,dive,required"`
	Previewed        bool     `json:"previewed"`
}

type timeRequest struct {
	Seconds int64 `json:"seconds"`
}

type importResponse struct {
	Sessions int      `json:"sessions"`
	Open     bool     `json:"open"`
	Dropped  []string `json:"dropped"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ExamLabel == "" && h.catalog != nil {
		req.ExamLabel = h.catalog.Label(req.ExamID)
	}
	s, err := h.tracker.StartSession(req.ExamID, req.ExamLabel)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.saveAndRespond(w, r, http.StatusCreated, s)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.tracker.EndOpenSession()
	if !ok {
		h.fail(w, r, tracker.ErrNoOpenSession)
		return
	}
	h.saveAndRespond(w, r, http.StatusOK, s)
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.tracker.OpenSession()
	if !ok {
		h.fail(w, r, tracker.ErrNoOpenSession)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleAttempt(w http.ResponseWriter, r *http.Request) {
	qid := chi.URLParam(r, "qid")
	var req attemptRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CorrectAnswerKey == nil && h.catalog != nil {
		if open, ok := h.tracker.OpenSession(); ok {
			if key, ok := h.catalog.AnswerKey(open.ExamID, qid); ok {
				req.CorrectAnswerKey = key
			}
		}
	}
	q, err := h.tracker.RecordAttempt(qid, req.Answers, req.CorrectAnswerKey, req.Previewed)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.saveAndRespond(w, r, http.StatusOK, q)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	q, err := h.tracker.RecordReset(chi.URLParam(r, "qid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.saveAndRespond(w, r, http.StatusOK, q)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	q, err := h.tracker.RecordPreviewInteraction(chi.URLParam(r, "qid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.saveAndRespond(w, r, http.StatusOK, q)
}

func (h *Handler) handleTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.tracker.RecordTime(chi.URLParam(r, "qid"), req.Seconds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.saveAndRespond(w, r, http.StatusOK, q)
}

func (h *Handler) handleAnswered(w http.ResponseWriter, r *http.Request) {
	answered := h.tracker.IsQuestionAnswered(chi.URLParam(r, "examID"), chi.URLParam(r, "qid"))
	writeJSON(w, http.StatusOK, map[string]bool{"answered": answered})
}

func (h *Handler) handleRollups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.AllRollups())
}

func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	rollup, ok := h.tracker.RollupFor(chi.URLParam(r, "examID"))
	if !ok {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "ErrNoRollup"))
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := codec.MarshalVerbose(h.tracker.ExportSnapshot())
	if err != nil {
		slog.Error("export snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="examstats-export.json"`)
	w.Write(data)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSnapshotBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, i18n.T(r.Context(), "ErrBadRequest"))
		return
	}
	dropped, err := h.tracker.ImportSnapshot(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := h.tracker.ExportSnapshot()
	resp := importResponse{Sessions: len(snap.Sessions), Open: snap.Open != nil, Dropped: []string{}}
	for _, d := range dropped {
		resp.Dropped = append(resp.Dropped, d.Error())
	}
	h.saveAndRespond(w, r, http.StatusOK, resp)
}

// decode reads and validates a JSON body. An empty body is an empty
// request.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			writeError(w, http.StatusBadRequest, i18n.T(r.Context(), "ErrBadRequest"))
			return false
		}
	}
	fields, err := h.validate.Struct(v, i18n.Lang(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if fields != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: i18n.T(r.Context(), "ErrInvalidRequest"), Fields: fields})
		return false
	}
	return true
}

// saveAndRespond persists the tracker state. The mutation stays in memory
// when the save fails; the client gets 503 so it can tell the user.
func (h *Handler) saveAndRespond(w http.ResponseWriter, r *http.Request, status int, data any) {
	if _, err := h.gateway.Save(r.Context(), h.tracker.ExportSnapshot()); err != nil {
		msg := err.Error()
		if errors.Is(err, gateway.ErrQuotaExceeded) {
			msg = i18n.T(r.Context(), "ErrQuotaExceeded")
		}
		writeError(w, http.StatusServiceUnavailable, msg)
		return
	}
	writeJSON(w, status, data)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tracker.ErrNoOpenSession):
		writeError(w, http.StatusConflict, i18n.T(r.Context(), "ErrNoOpenSession"))
	case errors.Is(err, tracker.ErrEmptyExamID), errors.Is(err, tracker.ErrEmptyQuestionID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
