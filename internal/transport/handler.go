package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/you-humble/chatmover/internal/domain"
)

// Orchestrator is the service surface the HTTP layer forwards to.
type Orchestrator interface {
	StartBatch(req domain.BatchRequest) (string, error)
	RequestCancel(owner domain.UserID, taskID string) error
	ActiveTasks(owner domain.UserID) []domain.TaskRecord
}

type handler struct {
	orchestrator Orchestrator
	startedAt    time.Time
}

func NewHandler(orch Orchestrator) *handler {
	return &handler{
		orchestrator: orch,
		startedAt:    time.Now(),
	}
}

func (h *handler) startBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "startBatch"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer r.Body.Close()

	var req domain.BatchStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	handle := req.Handle
	if handle == "" {
		handle = requestID
	}

	taskID, err := h.orchestrator.StartBatch(domain.BatchRequest{
		Spec: req.Spec,
		Dest: domain.Destination{
			Chat:   domain.ChatID(req.DestChat),
			Thread: req.DestThread,
		},
		Delay:  time.Duration(req.DelaySeconds) * time.Second,
		Owner:  domain.UserID(req.Owner),
		Handle: handle,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskLimit):
			writeError(w, http.StatusTooManyRequests, "active task limit reached, cancel or wait")
		case errors.Is(err, domain.ErrSharedSessionBusy):
			writeError(w, http.StatusConflict, "another transfer is using the shared session")
		default:
			logger.Warn("StartBatch", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	logger.Info("batch accepted", slog.String("task_id", taskID))
	writeJSON(w, http.StatusAccepted, domain.BatchStartResponse{TaskID: taskID})
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	defer r.Body.Close()

	var req domain.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Owner == 0 {
		writeError(w, http.StatusBadRequest, "field `owner` is required")
		return
	}

	err := h.orchestrator.RequestCancel(domain.UserID(req.Owner), req.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "no matching task")
			return
		}
		slog.Error("RequestCancel", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) tasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	owner, err := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
	if err != nil || owner == 0 {
		writeError(w, http.StatusBadRequest, "query parameter `owner` is required")
		return
	}

	records := h.orchestrator.ActiveTasks(domain.UserID(owner))
	views := make([]domain.TaskView, 0, len(records))
	for _, rec := range records {
		views = append(views, domain.TaskView{
			TaskID:    rec.ID,
			Label:     rec.Label,
			StartedAt: rec.StartedAt,
		})
	}

	writeJSON(w, http.StatusOK, views)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	writeJSON(w, http.StatusOK, domain.HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
