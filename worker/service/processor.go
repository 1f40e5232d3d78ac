package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"imagecurator/worker/acquire"
	"imagecurator/worker/kafka"
	"imagecurator/worker/repository"
)

// StatusStore publishes pipeline progress for the interactive side.
type StatusStore interface {
	SetStatus(ctx context.Context, productID, status string) error
	SetCandidates(ctx context.Context, productID string, candidates interface{}) error
	DeleteCandidates(ctx context.Context, productID string) error
}

// Gatherer runs the acquisition stage for a claimed task.
type Gatherer interface {
	Gather(ctx context.Context, task *repository.Task) ([]acquire.Candidate, error)
	WorkingDir(title string) string
}

// Publisher runs the publication stage for a claimed task.
type Publisher interface {
	Publish(ctx context.Context, task *repository.Task, dir string, selected []string, thumbnail string) ([]string, error)
	Teardown(dir string)
}

// Processor executes curation jobs delivered over the queue. Every job
// re-validates ownership against the registry before touching anything: a
// bulk restart may have reverted the task while the message sat in the
// topic, and a stale job must not overwrite the restarted row.
type Processor struct {
	repo      repository.Repository
	cache     StatusStore
	gatherer  Gatherer
	publisher Publisher
	logger    *zap.Logger
}

func NewProcessor(repo repository.Repository, cache StatusStore, gatherer Gatherer, publisher Publisher, logger *zap.Logger) *Processor {
	return &Processor{
		repo:      repo,
		cache:     cache,
		gatherer:  gatherer,
		publisher: publisher,
		logger:    logger,
	}
}

func (p *Processor) Process(ctx context.Context, msg *kafka.CurationMessage) error {
	log := p.logger.With(
		zap.String("trace_id", msg.TraceID),
		zap.String("task_id", msg.TaskID),
		zap.String("worker_id", msg.WorkerID),
		zap.String("action", msg.Action),
	)

	task, err := p.repo.GetTask(ctx, msg.TaskID)
	if err != nil {
		log.Error("Failed to load task", zap.Error(err))
		return err
	}

	if task.Status != repository.StatusProcessing || task.Assignee != msg.WorkerID {
		log.Warn("Dropping stale job",
			zap.String("status", task.Status),
			zap.String("assignee", task.Assignee),
		)
		return nil
	}

	switch msg.Action {
	case kafka.ActionAcquire:
		return p.runAcquire(ctx, task, log)
	case kafka.ActionPublish:
		return p.runPublish(ctx, task, msg, log)
	default:
		log.Warn("Unknown action")
		return nil
	}
}

func (p *Processor) runAcquire(ctx context.Context, task *repository.Task, log *zap.Logger) error {
	candidates, err := p.gatherer.Gather(ctx, task)
	if err != nil {
		detail := fmt.Sprintf("acquisition failed: %v", err)
		if repoErr := p.repo.MarkError(ctx, task.ProductID, detail); repoErr != nil {
			log.Error("Failed to record acquisition error", zap.Error(repoErr))
		}
		if cacheErr := p.cache.SetStatus(ctx, task.ProductID, repository.StatusError); cacheErr != nil {
			log.Warn("Failed to cache status", zap.Error(cacheErr))
		}
		log.Error("Acquisition failed", zap.Error(err))
		return err
	}

	if err := p.cache.SetCandidates(ctx, task.ProductID, candidates); err != nil {
		log.Warn("Failed to cache candidates", zap.Error(err))
	}

	log.Info("Acquisition complete", zap.Int("candidates", len(candidates)))
	return nil
}

func (p *Processor) runPublish(ctx context.Context, task *repository.Task, msg *kafka.CurationMessage, log *zap.Logger) error {
	dir := p.gatherer.WorkingDir(task.Title)

	if _, err := p.publisher.Publish(ctx, task, dir, msg.Selected, msg.Thumbnail); err != nil {
		// The task stays processing and the directory stays in place so the
		// operator can retry from the failed stage.
		if repoErr := p.repo.RecordFailure(ctx, task.ProductID, err.Error()); repoErr != nil {
			log.Error("Failed to record publication failure", zap.Error(repoErr))
		}
		log.Error("Publication failed", zap.Error(err))
		return err
	}

	if err := p.repo.CompleteTask(ctx, task.ProductID, msg.WorkerID); err != nil {
		if errors.Is(err, repository.ErrOwnershipLost) {
			// Restarted underneath us after the catalog sync; leave the
			// directory for whoever picks the task up next.
			log.Warn("Ownership lost before commit; abandoning")
			return err
		}
		log.Error("Failed to commit terminal state", zap.Error(err))
		return err
	}

	p.publisher.Teardown(dir)

	if err := p.cache.SetStatus(ctx, task.ProductID, repository.StatusDone); err != nil {
		log.Warn("Failed to cache status", zap.Error(err))
	}
	if err := p.cache.DeleteCandidates(ctx, task.ProductID); err != nil {
		log.Warn("Failed to drop candidate cache", zap.Error(err))
	}

	log.Info("Publication complete")
	return nil
}
