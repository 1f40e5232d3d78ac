package repository

import (
	"context"
	"errors"

	"imagecurator/api/models"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskClaimed means another worker holds the task. Callers should
	// re-poll the listing instead of retrying the claim.
	ErrTaskClaimed = errors.New("task already claimed by another worker")
)

type Repository interface {
	// CreateMissing inserts a pending task for every product id not already
	// tracked. Existing rows are never touched, so re-running a sync with an
	// unchanged catalog inserts nothing.
	CreateMissing(ctx context.Context, tasks []models.Task) (int64, error)

	GetByProductID(ctx context.Context, productID string) (*models.Task, error)

	// Claim atomically moves a pending task to processing for the given
	// worker. A worker re-entering its own processing task succeeds.
	Claim(ctx context.Context, productID, workerID string) (*models.Task, error)

	// ListQueue returns the non-terminal working queue ordered by the
	// requester's role priority.
	ListQueue(ctx context.Context, worker models.Worker, page, perPage int) ([]models.Task, error)

	// Skip marks the worker's own processing task as skipped.
	Skip(ctx context.Context, productID, workerID string) error

	// RestartAll reverts every task to pending and clears assignment state
	// in one statement.
	RestartAll(ctx context.Context) (int64, error)
}
