package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrOwnershipLost means the task was restarted or reassigned while the
	// pipeline job was running; the job must abandon its commit.
	ErrOwnershipLost = errors.New("task no longer owned by this worker")
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

// Task is the slice of the registry row the pipeline needs.
type Task struct {
	ProductID   string
	Title       string
	Handle      string
	Status      string
	Assignee    string
	ErrorDetail string
}

type Repository interface {
	GetTask(ctx context.Context, productID string) (*Task, error)
	// MarkError is the terminal pipeline failure: status becomes error and
	// the assignment is released.
	MarkError(ctx context.Context, productID, detail string) error
	// RecordFailure notes a publication-stage failure while keeping the task
	// processing, so the operator can retry with the work preserved.
	RecordFailure(ctx context.Context, productID, detail string) error
	// CompleteTask commits the terminal done state, but only if the task is
	// still processing under the same worker.
	CompleteTask(ctx context.Context, productID, workerID string) error
}

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetTask(ctx context.Context, productID string) (*Task, error) {
	query := `
		SELECT product_id, title, handle, status, COALESCE(assignee, ''), error_detail
		FROM tasks
		WHERE product_id = $1`

	var task Task
	err := r.db.QueryRow(ctx, query, productID).Scan(
		&task.ProductID,
		&task.Title,
		&task.Handle,
		&task.Status,
		&task.Assignee,
		&task.ErrorDetail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return &task, nil
}

func (r *PostgresRepo) MarkError(ctx context.Context, productID, detail string) error {
	query := `
		UPDATE tasks
		SET status = $2, error_detail = $3, assignee = NULL, updated_at = NOW()
		WHERE product_id = $1`

	tag, err := r.db.Exec(ctx, query, productID, StatusError, detail)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

func (r *PostgresRepo) RecordFailure(ctx context.Context, productID, detail string) error {
	query := `
		UPDATE tasks
		SET error_detail = $2, updated_at = NOW()
		WHERE product_id = $1 AND status = $3`

	tag, err := r.db.Exec(ctx, query, productID, detail, StatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

func (r *PostgresRepo) CompleteTask(ctx context.Context, productID, workerID string) error {
	query := `
		UPDATE tasks
		SET status = $3, assignee = NULL, error_detail = '',
		    processed_at = NOW(), completed_at = NOW(), updated_at = NOW()
		WHERE product_id = $1 AND status = $4 AND assignee = $2`

	tag, err := r.db.Exec(ctx, query, productID, workerID, StatusDone, StatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOwnershipLost
	}

	return nil
}
