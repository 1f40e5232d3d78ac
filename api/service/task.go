package service

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"imagecurator/api/catalog"
	"imagecurator/api/dto"
	"imagecurator/api/kafka"
	"imagecurator/api/models"
	"imagecurator/api/repository"
)

var (
	ErrNotOwner         = errors.New("task is not being processed by this worker")
	ErrAdminOnly        = errors.New("operation requires the admin role")
	ErrEmptySelection   = errors.New("no images selected")
	ErrInvalidThumbnail = errors.New("thumbnail must be one of the selected images")
)

type TaskService struct {
	repo     repository.Repository
	cache    StatusStore
	producer kafka.Producer
	catalog  CatalogLister
	logger   *zap.Logger
	topic    string
	pageSize int
}

// CatalogLister is the slice of the catalog client bulk sync needs.
type CatalogLister interface {
	ListProposedProducts(ctx context.Context) ([]catalog.Product, error)
}

// StatusStore is the slice of the status cache the registry reads and writes.
type StatusStore interface {
	Get(ctx context.Context, productID string) (*models.TaskStatus, error)
	Set(ctx context.Context, productID string, status models.TaskStatus) error
	Candidates(ctx context.Context, productID string) ([]models.Candidate, error)
	DeleteCandidates(ctx context.Context, productID string) error
}

func NewTaskService(repo repository.Repository, cache StatusStore, producer kafka.Producer, catalog CatalogLister, topic string, pageSize int, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:     repo,
		cache:    cache,
		producer: producer,
		catalog:  catalog,
		logger:   logger,
		topic:    topic,
		pageSize: pageSize,
	}
}

// SyncCatalog reconciles the registry against the catalog's proposed
// products. Only unseen product ids produce new rows, so the operation is
// idempotent.
func (s *TaskService) SyncCatalog(ctx context.Context) (int64, error) {
	products, err := s.catalog.ListProposedProducts(ctx)
	if err != nil {
		return 0, err
	}

	tasks := make([]models.Task, 0, len(products))
	for _, p := range products {
		tasks = append(tasks, models.Task{
			ProductID:   p.ID,
			Title:       p.Title,
			Handle:      p.Handle,
			Thumbnail:   p.Thumbnail,
			Description: p.Description,
		})
	}

	loaded, err := s.repo.CreateMissing(ctx, tasks)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Catalog sync finished",
		zap.Int("fetched", len(products)),
		zap.Int64("loaded", loaded),
	)

	return loaded, nil
}

func (s *TaskService) ListQueue(ctx context.Context, worker models.Worker, page int) (*dto.ListResponse, error) {
	tasks, err := s.repo.ListQueue(ctx, worker, page, s.pageSize)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListResponse{Page: page, Tasks: make([]dto.TaskResponse, 0, len(tasks))}
	for i := range tasks {
		resp.Tasks = append(resp.Tasks, *toResponse(&tasks[i]))
	}

	return resp, nil
}

// Claim assigns the task to the worker and dispatches the acquisition job.
// The claim itself is synchronous; acquisition runs out of band.
func (s *TaskService) Claim(ctx context.Context, productID string, worker models.Worker, traceID string) (*dto.TaskResponse, error) {
	task, err := s.repo.Claim(ctx, productID, worker.ID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, task.ProductID, task.Status); err != nil {
		s.logger.Warn("Failed to cache task status", zap.String("task_id", productID), zap.Error(err))
	}

	msg := &kafka.CurationMessage{
		TaskID:   task.ProductID,
		TraceID:  traceID,
		WorkerID: worker.ID,
		Action:   kafka.ActionAcquire,
	}
	if err := s.producer.SendCurationMessage(ctx, s.topic, msg); err != nil {
		// The claim stands; re-claiming the same task re-dispatches.
		return nil, err
	}

	s.logger.Info("Task claimed",
		zap.String("trace_id", traceID),
		zap.String("task_id", productID),
		zap.String("worker_id", worker.ID),
	)

	return toResponse(task), nil
}

func (s *TaskService) Skip(ctx context.Context, productID string, worker models.Worker) error {
	if err := s.repo.Skip(ctx, productID, worker.ID); err != nil {
		return err
	}

	if err := s.cache.Set(ctx, productID, models.StatusSkipped); err != nil {
		s.logger.Warn("Failed to cache task status", zap.String("task_id", productID), zap.Error(err))
	}
	if err := s.cache.DeleteCandidates(ctx, productID); err != nil {
		s.logger.Warn("Failed to drop candidate cache", zap.String("task_id", productID), zap.Error(err))
	}

	return nil
}

// Candidates returns the structured candidate set gathered for the worker's
// own in-flight task. An empty set means acquisition is still running or
// found nothing; the caller decides whether to wait, skip, or retry.
func (s *TaskService) Candidates(ctx context.Context, productID string, worker models.Worker) (*dto.CandidatesResponse, error) {
	if err := s.checkOwnership(ctx, productID, worker); err != nil {
		return nil, err
	}

	candidates, err := s.cache.Candidates(ctx, productID)
	if err != nil {
		candidates = nil
	}

	return &dto.CandidatesResponse{ProductID: productID, Candidates: candidates}, nil
}

// Publish validates the human selection and dispatches the publication job.
func (s *TaskService) Publish(ctx context.Context, productID string, worker models.Worker, req *dto.PublishRequest, traceID string) error {
	if len(req.Selected) == 0 {
		return ErrEmptySelection
	}
	if req.Thumbnail == "" || !slices.Contains(req.Selected, req.Thumbnail) {
		return ErrInvalidThumbnail
	}

	if err := s.checkOwnership(ctx, productID, worker); err != nil {
		return err
	}

	msg := &kafka.CurationMessage{
		TaskID:    productID,
		TraceID:   traceID,
		WorkerID:  worker.ID,
		Action:    kafka.ActionPublish,
		Selected:  req.Selected,
		Thumbnail: req.Thumbnail,
	}
	if err := s.producer.SendCurationMessage(ctx, s.topic, msg); err != nil {
		return err
	}

	s.logger.Info("Publication dispatched",
		zap.String("trace_id", traceID),
		zap.String("task_id", productID),
		zap.Int("selected", len(req.Selected)),
	)

	return nil
}

func (s *TaskService) RestartAll(ctx context.Context, worker models.Worker) (int64, error) {
	if !worker.IsAdmin() {
		return 0, ErrAdminOnly
	}

	restarted, err := s.repo.RestartAll(ctx)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Bulk restart executed",
		zap.String("worker_id", worker.ID),
		zap.Int64("restarted", restarted),
	)

	return restarted, nil
}

func (s *TaskService) TaskStatus(ctx context.Context, productID string) (*dto.StatusResponse, error) {
	if status, err := s.cache.Get(ctx, productID); err == nil {
		return &dto.StatusResponse{ProductID: productID, Status: string(*status)}, nil
	}

	task, err := s.repo.GetByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, task.ProductID, task.Status); err != nil {
		s.logger.Warn("Failed to cache task status", zap.String("task_id", productID), zap.Error(err))
	}

	return &dto.StatusResponse{ProductID: productID, Status: string(task.Status)}, nil
}

func (s *TaskService) checkOwnership(ctx context.Context, productID string, worker models.Worker) error {
	task, err := s.repo.GetByProductID(ctx, productID)
	if err != nil {
		return err
	}
	if task.Status != models.StatusProcessing || task.Assignee != worker.ID {
		return ErrNotOwner
	}
	return nil
}

func toResponse(task *models.Task) *dto.TaskResponse {
	var processedAt *string
	if task.ProcessedAt != nil {
		formatted := task.ProcessedAt.Format("2006-01-02T15:04:05Z")
		processedAt = &formatted
	}

	return &dto.TaskResponse{
		ProductID:   task.ProductID,
		Title:       task.Title,
		Handle:      task.Handle,
		Status:      string(task.Status),
		Assignee:    task.Assignee,
		ErrorDetail: task.ErrorDetail,
		ProcessedAt: processedAt,
		CreatedAt:   task.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
