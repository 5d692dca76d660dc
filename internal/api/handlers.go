package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/companion-labs/companion-messaging/internal/model"
	"github.com/companion-labs/companion-messaging/internal/repo"
	"github.com/companion-labs/companion-messaging/internal/scheduler"
	"github.com/companion-labs/companion-messaging/internal/service"
	"github.com/companion-labs/companion-messaging/internal/sweep"
)

type Handler struct {
	inline  *service.Inline
	sweeper *sweep.Sweeper
	sched   *scheduler.Scheduler
	logs    repo.LogRepository
}

func NewHandler(inline *service.Inline, sweeper *sweep.Sweeper, sched *scheduler.Scheduler, logs repo.LogRepository) *Handler {
	return &Handler{inline: inline, sweeper: sweeper, sched: sched, logs: logs}
}

// InboundSMS is the Twilio webhook. The upstream retries on any non-2xx
// response, so soft failures (unknown or malformed numbers) still get an
// empty TwiML acknowledgment; only real internal failures return 500.
func (h *Handler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	body := r.PostFormValue("Body")
	from := r.PostFormValue("From")
	to := r.PostFormValue("To")

	if from == "" || to == "" {
		slog.Warn("inbound sms missing From or To, acknowledging without action")
		writeTwiML(w)
		return
	}

	if err := h.inline.HandleInbound(r.Context(), body, from, to); err != nil {
		slog.Error("inbound sms failed", "from", from, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeTwiML(w)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sweeper.Run(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	direction := model.Direction(r.URL.Query().Get("direction"))
	switch direction {
	case "", model.DirectionInbound, model.DirectionOutbound:
	default:
		http.Error(w, "direction must be inbound or outbound", http.StatusBadRequest)
		return
	}

	items, err := h.logs.ListLog(r.Context(), direction, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<Response></Response>"))
}
