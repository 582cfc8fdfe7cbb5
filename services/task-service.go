package services

import (
	"context"
	"fmt"

	"task-management/microservices/tasks-service/logging"
	"task-management/microservices/tasks-service/models"
	"task-management/microservices/tasks-service/repositories"

	"github.com/google/uuid"
)

// TaskService applies task use cases on top of a TaskRepository. It does not
// guard check-then-write sequences; concurrent updates of one task resolve
// as last writer wins.
type TaskService struct {
	repo repositories.TaskRepository
}

func NewTaskService(repo repositories.TaskRepository) (*TaskService, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	return &TaskService{repo: repo}, nil
}

// CreateTask persists task, assigning an ID and timestamps when missing.
func (s *TaskService) CreateTask(ctx context.Context, task models.Task) (models.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.StatusNotStarted
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = models.Timestamp()
		task.UpdatedAt = task.CreatedAt
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}

	saved, err := s.repo.Save(ctx, task)
	if err != nil {
		logging.Logger.Errorf("Event ID: TASK_CREATE_FAILED, Description: Failed to create task for user %s: %v", task.OwnerID, err)
		return models.Task{}, err
	}

	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Task %s created for user %s", saved.ID, saved.OwnerID)
	return saved, nil
}

func (s *TaskService) GetTask(ctx context.Context, taskID, ownerID string) (models.Task, error) {
	task, err := s.find(ctx, taskID, ownerID)
	if err != nil {
		return models.Task{}, err
	}
	return *task, nil
}

// ListTasks never returns a nil slice.
func (s *TaskService) ListTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	tasks, err := s.repo.FindAllByOwner(ctx, ownerID)
	if err != nil {
		logging.Logger.Errorf("Event ID: TASK_LIST_FAILED, Description: Failed to list tasks for user %s: %v", ownerID, err)
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// UpdateTask replaces the stored task with task as given. The task must
// already exist for its own (ID, OwnerID); nothing is written otherwise.
func (s *TaskService) UpdateTask(ctx context.Context, task models.Task) (models.Task, error) {
	if _, err := s.find(ctx, task.ID, task.OwnerID); err != nil {
		return models.Task{}, err
	}

	saved, err := s.repo.Save(ctx, task)
	if err != nil {
		logging.Logger.Errorf("Event ID: TASK_UPDATE_FAILED, Description: Failed to update task %s: %v", task.ID, err)
		return models.Task{}, err
	}

	logging.Logger.Infof("Event ID: TASK_UPDATED, Description: Task %s updated", saved.ID)
	return saved, nil
}

// DeleteTask removes the task and reports whether the store still held it.
func (s *TaskService) DeleteTask(ctx context.Context, taskID, ownerID string) (bool, error) {
	if _, err := s.find(ctx, taskID, ownerID); err != nil {
		return false, err
	}

	deleted, err := s.repo.Delete(ctx, taskID, ownerID)
	if err != nil {
		logging.Logger.Errorf("Event ID: TASK_DELETE_FAILED, Description: Failed to delete task %s: %v", taskID, err)
		return false, err
	}

	logging.Logger.Infof("Event ID: TASK_DELETED, Description: Task %s deleted (existed: %t)", taskID, deleted)
	return deleted, nil
}

// UpdateTaskStatus moves the task to status. Any transition is allowed.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, taskID, ownerID string, status models.TaskStatus) (models.Task, error) {
	task, err := s.find(ctx, taskID, ownerID)
	if err != nil {
		return models.Task{}, err
	}

	if err := task.SetStatus(status); err != nil {
		return models.Task{}, err
	}

	saved, err := s.repo.Save(ctx, *task)
	if err != nil {
		logging.Logger.Errorf("Event ID: TASK_STATUS_UPDATE_FAILED, Description: Failed to update status of task %s: %v", taskID, err)
		return models.Task{}, err
	}

	logging.Logger.Infof("Event ID: TASK_STATUS_UPDATED, Description: Task %s status changed to %s", taskID, status)
	return saved, nil
}

func (s *TaskService) find(ctx context.Context, taskID, ownerID string) (*models.Task, error) {
	task, err := s.repo.FindByIDAndOwner(ctx, taskID, ownerID)
	if err != nil {
		logging.Logger.Errorf("Event ID: TASK_LOOKUP_FAILED, Description: Failed to load task %s: %v", taskID, err)
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}
