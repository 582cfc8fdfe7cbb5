package repositories

import (
	"context"

	"task-management/microservices/tasks-service/models"
)

// TaskRepository persists tasks keyed by the composite (task id, owner id).
// Absence is never an error: FindByIDAndOwner returns nil and Delete
// returns false. Errors are backend failures and are returned as-is.
type TaskRepository interface {
	// Save upserts the whole record, replacing any previous version.
	Save(ctx context.Context, task models.Task) (models.Task, error)
	FindByIDAndOwner(ctx context.Context, taskID, ownerID string) (*models.Task, error)
	// FindAllByOwner returns the owner's tasks in no particular order.
	FindAllByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
	// Delete reports whether a record existed.
	Delete(ctx context.Context, taskID, ownerID string) (bool, error)
}
