package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-management/microservices/tasks-service/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

var _ TaskRepository = (*PostgresTaskRepository)(nil)

func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

// CreateTable creates the tasks table and the owner index if they are missing.
func (r *PostgresTaskRepository) CreateTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			task_id     TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			due_date    TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (task_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS tasks_user_id_idx ON tasks (user_id);`)
	if err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepository) Save(ctx context.Context, task models.Task) (models.Task, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (task_id, user_id, title, description, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (task_id, user_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			due_date = EXCLUDED.due_date,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		task.ID, task.OwnerID, task.Title, task.Description, string(task.Status), task.DueDate, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to save task: %w", err)
	}
	return task, nil
}

const selectPostgresTask = `SELECT task_id, user_id, title, description, status, due_date, created_at, updated_at FROM tasks`

func (r *PostgresTaskRepository) FindByIDAndOwner(ctx context.Context, taskID, ownerID string) (*models.Task, error) {
	row := r.pool.QueryRow(ctx, selectPostgresTask+` WHERE task_id = $1 AND user_id = $2`, taskID, ownerID)

	task, err := scanPostgresTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &task, nil
}

func (r *PostgresTaskRepository) FindAllByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	rows, err := r.pool.Query(ctx, selectPostgresTask+` WHERE user_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		task, err := scanPostgresTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	return tasks, nil
}

func (r *PostgresTaskRepository) Delete(ctx context.Context, taskID, ownerID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE task_id = $1 AND user_id = $2`, taskID, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPostgresTask(row pgx.Row) (models.Task, error) {
	var (
		task   models.Task
		status string
		due    *time.Time
	)
	if err := row.Scan(&task.ID, &task.OwnerID, &task.Title, &task.Description, &status, &due, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return models.Task{}, err
	}

	task.Status = models.TaskStatus(status)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	if due != nil {
		d := due.UTC()
		task.DueDate = &d
	}
	return task, nil
}
