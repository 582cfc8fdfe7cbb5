package repositories

import (
	"context"
	"sync"

	"task-management/microservices/tasks-service/models"
)

type taskKey struct {
	taskID  string
	ownerID string
}

// MemoryTaskRepository keeps tasks in process memory. Values are copied on
// the way in and out so callers never share state with the store.
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[taskKey]models.Task
}

var _ TaskRepository = (*MemoryTaskRepository)(nil)

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks: make(map[taskKey]models.Task),
	}
}

func (r *MemoryTaskRepository) Save(ctx context.Context, task models.Task) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}

	r.mu.Lock()
	r.tasks[taskKey{task.ID, task.OwnerID}] = task.Clone()
	r.mu.Unlock()

	return task, nil
}

func (r *MemoryTaskRepository) FindByIDAndOwner(ctx context.Context, taskID, ownerID string) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	task, ok := r.tasks[taskKey{taskID, ownerID}]
	r.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	found := task.Clone()
	return &found, nil
}

func (r *MemoryTaskRepository) FindAllByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]models.Task, 0)
	for key, task := range r.tasks {
		if key.ownerID == ownerID {
			tasks = append(tasks, task.Clone())
		}
	}
	return tasks, nil
}

func (r *MemoryTaskRepository) Delete(ctx context.Context, taskID, ownerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := taskKey{taskID, ownerID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[key]; !ok {
		return false, nil
	}
	delete(r.tasks, key)
	return true, nil
}
