package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"imagecurator/api/catalog"
	"imagecurator/api/dto"
	"imagecurator/api/middleware"
	"imagecurator/api/models"
	"imagecurator/api/repository"
	"imagecurator/api/service"
)

// TaskService is the surface the HTTP layer needs from the registry.
type TaskService interface {
	SyncCatalog(ctx context.Context) (int64, error)
	ListQueue(ctx context.Context, worker models.Worker, page int) (*dto.ListResponse, error)
	Claim(ctx context.Context, productID string, worker models.Worker, traceID string) (*dto.TaskResponse, error)
	Skip(ctx context.Context, productID string, worker models.Worker) error
	Candidates(ctx context.Context, productID string, worker models.Worker) (*dto.CandidatesResponse, error)
	Publish(ctx context.Context, productID string, worker models.Worker, req *dto.PublishRequest, traceID string) error
	RestartAll(ctx context.Context, worker models.Worker) (int64, error)
	TaskStatus(ctx context.Context, productID string) (*dto.StatusResponse, error)
}

type TaskHandler struct {
	service TaskService
	logger  *zap.Logger
}

func NewTaskHandler(service TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger,
	}
}

func (h *TaskHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sync", h.Sync)
	mux.HandleFunc("GET /tasks", h.List)
	mux.HandleFunc("POST /tasks/{id}/claim", h.Claim)
	mux.HandleFunc("POST /tasks/{id}/skip", h.Skip)
	mux.HandleFunc("GET /tasks/{id}/candidates", h.Candidates)
	mux.HandleFunc("POST /tasks/{id}/publish", h.Publish)
	mux.HandleFunc("POST /restart", h.Restart)
	mux.HandleFunc("GET /status/{id}", h.Status)
}

func (h *TaskHandler) Sync(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	loaded, err := h.service.SyncCatalog(r.Context())
	if err != nil {
		h.handleError(w, r, "Failed to sync catalog", err)
		return
	}

	h.logger.Info("Catalog synced",
		zap.String("trace_id", traceID),
		zap.Int64("loaded", loaded),
	)

	h.respondJSON(w, http.StatusOK, dto.SyncResponse{Loaded: loaded})
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	worker, ok := middleware.GetWorker(r.Context())
	if !ok {
		h.handleError(w, r, "Worker identity required", nil)
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	resp, err := h.service.ListQueue(r.Context(), worker, page)
	if err != nil {
		h.handleError(w, r, "Failed to list tasks", err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) Claim(w http.ResponseWriter, r *http.Request) {
	worker, ok := middleware.GetWorker(r.Context())
	if !ok {
		h.handleError(w, r, "Worker identity required", nil)
		return
	}

	productID := r.PathValue("id")
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Claim(r.Context(), productID, worker, traceID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskClaimed) {
			h.respondError(w, http.StatusConflict, "Task is already being worked on", traceID)
			return
		}
		h.handleError(w, r, "Failed to claim task", err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) Skip(w http.ResponseWriter, r *http.Request) {
	worker, ok := middleware.GetWorker(r.Context())
	if !ok {
		h.handleError(w, r, "Worker identity required", nil)
		return
	}

	if err := h.service.Skip(r.Context(), r.PathValue("id"), worker); err != nil {
		h.handleError(w, r, "Failed to skip task", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	worker, ok := middleware.GetWorker(r.Context())
	if !ok {
		h.handleError(w, r, "Worker identity required", nil)
		return
	}

	resp, err := h.service.Candidates(r.Context(), r.PathValue("id"), worker)
	if err != nil {
		h.handleError(w, r, "Failed to list candidates", err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) Publish(w http.ResponseWriter, r *http.Request) {
	worker, ok := middleware.GetWorker(r.Context())
	if !ok {
		h.handleError(w, r, "Worker identity required", nil)
		return
	}

	var req dto.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", middleware.GetTraceID(r.Context()))
		return
	}

	traceID := middleware.GetTraceID(r.Context())
	if err := h.service.Publish(r.Context(), r.PathValue("id"), worker, &req, traceID); err != nil {
		h.handleError(w, r, "Failed to start publication", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *TaskHandler) Restart(w http.ResponseWriter, r *http.Request) {
	worker, ok := middleware.GetWorker(r.Context())
	if !ok {
		h.handleError(w, r, "Worker identity required", nil)
		return
	}

	restarted, err := h.service.RestartAll(r.Context(), worker)
	if err != nil {
		h.handleError(w, r, "Failed to restart tasks", err)
		return
	}

	h.respondJSON(w, http.StatusOK, dto.RestartResponse{Restarted: restarted})
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")
	if productID == "" {
		h.respondError(w, http.StatusBadRequest, "Task ID is required", middleware.GetTraceID(r.Context()))
		return
	}

	resp, err := h.service.TaskStatus(r.Context(), productID)
	if err != nil {
		h.handleError(w, r, "Failed to get task status", err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) handleError(w http.ResponseWriter, r *http.Request, message string, err error) {
	traceID := middleware.GetTraceID(r.Context())

	status := http.StatusInternalServerError
	switch {
	case err == nil:
		status = http.StatusUnauthorized
	case errors.Is(err, repository.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrTaskClaimed):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrAdminOnly):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrEmptySelection), errors.Is(err, service.ErrInvalidThumbnail):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrAuthFailed):
		status = http.StatusBadGateway
	}

	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	if err != nil && status != http.StatusInternalServerError {
		h.respondError(w, status, err.Error(), traceID)
		return
	}
	h.respondError(w, status, message, traceID)
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message, traceID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
