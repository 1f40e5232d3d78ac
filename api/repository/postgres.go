package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"imagecurator/api/database"
	"imagecurator/api/models"
)

const taskColumns = `id, product_id, title, handle, thumbnail, description, status, assignee, error_detail, processed_at, completed_at, created_at, updated_at`

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Repository {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateMissing(ctx context.Context, tasks []models.Task) (int64, error) {
	batch := &pgx.Batch{}
	for _, task := range tasks {
		batch.Queue(`
			INSERT INTO tasks (product_id, title, handle, thumbnail, description, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (product_id) DO NOTHING
		`, task.ProductID, task.Title, task.Handle, task.Thumbnail, task.Description, models.StatusPending)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range tasks {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert task batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

func (r *PostgresRepo) GetByProductID(ctx context.Context, productID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE product_id = $1`

	task, err := scanTask(r.db.Pool.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return task, nil
}

// Claim relies on a single conditional UPDATE for its atomicity: the status
// check and the transition happen in one statement, so concurrent claimers
// cannot both see pending.
func (r *PostgresRepo) Claim(ctx context.Context, productID, workerID string) (*models.Task, error) {
	query := `
		UPDATE tasks
		SET status = $3, assignee = $2, updated_at = NOW()
		WHERE product_id = $1
		  AND (status = $4 OR (status = $3 AND assignee = $2))
		RETURNING ` + taskColumns

	task, err := scanTask(r.db.Pool.QueryRow(ctx, query, productID, workerID, models.StatusProcessing, models.StatusPending))
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Nothing matched: distinguish a missing task from a lost race.
	if _, getErr := r.GetByProductID(ctx, productID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrTaskClaimed
}

func (r *PostgresRepo) ListQueue(ctx context.Context, worker models.Worker, page, perPage int) ([]models.Task, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * perPage

	var query string
	if worker.IsAdmin() {
		// Admins see everything non-terminal, with others' in-flight tasks
		// available as lowest-priority fallback work.
		query = `
			SELECT ` + taskColumns + `
			FROM tasks
			WHERE status NOT IN ('done', 'skipped')
			ORDER BY CASE
				WHEN assignee = $1 THEN 1
				WHEN status = 'processing' THEN 2
				WHEN status = 'pending' AND assignee IS NULL THEN 3
				ELSE 4
			END, id
			LIMIT $2 OFFSET $3`
	} else {
		// Workers never see another worker's in-flight tasks.
		query = `
			SELECT ` + taskColumns + `
			FROM tasks
			WHERE status NOT IN ('done', 'skipped')
			  AND (assignee = $1 OR assignee IS NULL)
			ORDER BY CASE
				WHEN assignee = $1 THEN 1
				ELSE 2
			END, id
			LIMIT $2 OFFSET $3`
	}

	rows, err := r.db.Pool.Query(ctx, query, worker.ID, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

func (r *PostgresRepo) Skip(ctx context.Context, productID, workerID string) error {
	query := `
		UPDATE tasks
		SET status = $3, assignee = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE product_id = $1 AND status = $4 AND assignee = $2`

	tag, err := r.db.Pool.Exec(ctx, query, productID, workerID, models.StatusSkipped, models.StatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByProductID(ctx, productID); getErr != nil {
			return getErr
		}
		return ErrTaskClaimed
	}

	return nil
}

func (r *PostgresRepo) RestartAll(ctx context.Context) (int64, error) {
	query := `
		UPDATE tasks
		SET status = $1, assignee = NULL, error_detail = '',
		    processed_at = NULL, completed_at = NULL, updated_at = NOW()`

	tag, err := r.db.Pool.Exec(ctx, query, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("restart tasks: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var task models.Task
	var assignee *string
	err := row.Scan(
		&task.ID,
		&task.ProductID,
		&task.Title,
		&task.Handle,
		&task.Thumbnail,
		&task.Description,
		&task.Status,
		&assignee,
		&task.ErrorDetail,
		&task.ProcessedAt,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if assignee != nil {
		task.Assignee = *assignee
	}

	return &task, nil
}
