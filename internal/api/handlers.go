package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/LeventeLantos/pacedsend/internal/app"
	"github.com/LeventeLantos/pacedsend/internal/auditlog"
	"github.com/LeventeLantos/pacedsend/internal/messenger"
	"github.com/LeventeLantos/pacedsend/internal/model"
	"github.com/LeventeLantos/pacedsend/internal/queue"
	"github.com/LeventeLantos/pacedsend/internal/scheduler"
)

type Handler struct {
	app *app.App
}

func NewHandler(a *app.App) *Handler {
	return &Handler{app: a}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) RunStatus(w http.ResponseWriter, r *http.Request) {
	s := h.app.Scheduler
	body := map[string]any{
		"running":    s.IsRunning(),
		"state":      s.State(),
		"connection": h.app.Conn.State(),
		"stats":      s.Stats(),
		"progress":   s.Progress(),
	}
	if res, ok := s.LastResult(); ok {
		body["lastResult"] = res
		if err := s.LastError(); err != nil {
			body["lastError"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) RunStart(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Scheduler.Start(); err != nil {
		writeError(w, startStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": h.app.Scheduler.IsRunning()})
}

func (h *Handler) RunStop(w http.ResponseWriter, r *http.Request) {
	stopped := h.app.Scheduler.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"stopped": stopped,
		"running": h.app.Scheduler.IsRunning(),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Scheduler.Stats())
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	cur, total, err := h.app.Progress(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current": cur.LastIndex,
		"total":   total,
		"cursor":  cur,
	})
}

func (h *Handler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	if err := h.app.ResetProgress(r.Context()); err != nil {
		writeError(w, mutationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func (h *Handler) GetRecipients(w http.ResponseWriter, r *http.Request) {
	raw, err := h.app.Queue.LoadRaw()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	entries := queue.Parse(raw, h.app.Config().Recipients.Normalize)
	if entries == nil {
		entries = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raw":     raw,
		"entries": entries,
		"count":   len(entries),
	})
}

type recipientsRequest struct {
	Raw string `json:"raw"`
}

func (h *Handler) PutRecipients(w http.ResponseWriter, r *http.Request) {
	var req recipientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := h.app.SaveRecipients(req.Raw)
	if err != nil {
		writeError(w, mutationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (h *Handler) DeleteRecipient(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("index must be an integer"))
		return
	}
	removed, err := h.app.RemoveRecipient(r.Context(), index)
	if err != nil {
		writeError(w, mutationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	set, err := h.app.Messages()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if set.Variants == nil {
		set.Variants = []string{}
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) PutMessages(w http.ResponseWriter, r *http.Request) {
	var set model.MessageSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.SaveMessages(set); err != nil {
		writeError(w, mutationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	p := h.app.Config().Pacing
	writeJSON(w, http.StatusOK, map[string]any{
		"delayMinSeconds":        p.DelayMin.Seconds(),
		"delayMaxSeconds":        p.DelayMax.Seconds(),
		"typingDelayMinMs":       p.TypingDelayMin.Milliseconds(),
		"typingDelayMaxMs":       p.TypingDelayMax.Milliseconds(),
		"characterTyping":        p.CharacterTyping,
		"maxPerSession":          p.MaxPerSession,
		"longPauseEvery":         p.LongPauseEvery,
		"longPauseMinSeconds":    p.LongPauseMin.Seconds(),
		"longPauseMaxSeconds":    p.LongPauseMax.Seconds(),
		"hourStart":              p.HourStart,
		"hourEnd":                p.HourEnd,
		"errorBackoffMinSeconds": p.ErrorBackoffMin.Seconds(),
		"errorBackoffMaxSeconds": p.ErrorBackoffMax.Seconds(),
		"timezone":               p.Location.String(),
	})
}

func (h *Handler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	c := h.app.Conn
	body := map[string]any{"state": c.State()}
	if qr := c.LastQR(); qr != "" {
		body["qr"] = qr
	}
	if reason := c.Reason(); reason != "" {
		body["reason"] = reason
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Connect(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"state": h.app.Conn.State()})
}

func (h *Handler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.app.Outcomes(r.Context(), limit, offset)
	if errors.Is(err, auditlog.ErrListingUnsupported) {
		writeError(w, http.StatusNotImplemented, err)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.Outcome{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning), errors.Is(err, messenger.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, queue.ErrEmptyQueue), errors.Is(err, model.ErrNoMessage):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func mutationStatus(err error) int {
	switch {
	case errors.Is(err, app.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, queue.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrEmptyQueue), errors.Is(err, model.ErrNoMessage):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
