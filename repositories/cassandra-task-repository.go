package repositories

import (
	"context"
	"fmt"
	"time"

	"task-management/microservices/tasks-service/logging"
	"task-management/microservices/tasks-service/models"

	"github.com/gocql/gocql"
)

type CassandraTaskRepository struct {
	session *gocql.Session
}

var _ TaskRepository = (*CassandraTaskRepository)(nil)

// NewCassandraTaskRepository connects to the cluster, creates the keyspace
// if it does not exist and opens a session bound to it.
func NewCassandraTaskRepository(hosts []string, keyspace string) (*CassandraTaskRepository, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	session, err := cluster.CreateSession()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_CONNECT_FAILED, Description: %v", err)
		return nil, fmt.Errorf("failed to connect to cassandra: %w", err)
	}

	err = session.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s
		 WITH replication = {
			'class': 'SimpleStrategy',
			'replication_factor': 1
		 }`, keyspace)).Exec()
	session.Close()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_KEYSPACE_FAILED, Description: %v", err)
		return nil, fmt.Errorf("failed to create keyspace %s: %w", keyspace, err)
	}

	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.One
	session, err = cluster.CreateSession()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_CONNECT_FAILED, Description: keyspace %s: %v", keyspace, err)
		return nil, fmt.Errorf("failed to connect to keyspace %s: %w", keyspace, err)
	}

	logging.Logger.Infof("Event ID: CASSANDRA_CONNECTED, Description: Connected to keyspace %s", keyspace)
	return &CassandraTaskRepository{session: session}, nil
}

func (r *CassandraTaskRepository) CloseSession() {
	r.session.Close()
	logging.Logger.Info("Event ID: CASSANDRA_SESSION_CLOSED, Description: Cassandra session closed")
}

// CreateTable partitions by owner so listing a user's tasks reads one partition.
func (r *CassandraTaskRepository) CreateTable(ctx context.Context) error {
	err := r.session.Query(
		`CREATE TABLE IF NOT EXISTS tasks (
			user_id TEXT,
			task_id TEXT,
			title TEXT,
			description TEXT,
			status TEXT,
			due_date TIMESTAMP,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			PRIMARY KEY ((user_id), task_id)
		)`).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}
	return nil
}

// Save upserts through lightweight transactions only, like Delete. A row
// must never see both Paxos and plain writes.
func (r *CassandraTaskRepository) Save(ctx context.Context, task models.Task) (models.Task, error) {
	var due interface{}
	if task.DueDate != nil {
		due = *task.DueDate
	}

	// a row can appear or vanish between the two statements; retry briefly
	for attempt := 0; attempt < 3; attempt++ {
		applied, err := r.session.Query(
			`UPDATE tasks SET title = ?, description = ?, status = ?, due_date = ?, created_at = ?, updated_at = ?
			 WHERE user_id = ? AND task_id = ? IF EXISTS`,
			task.Title, task.Description, string(task.Status), due, task.CreatedAt, task.UpdatedAt, task.OwnerID, task.ID,
		).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			return models.Task{}, fmt.Errorf("failed to save task: %w", err)
		}
		if applied {
			return task, nil
		}

		applied, err = r.session.Query(
			`INSERT INTO tasks (user_id, task_id, title, description, status, due_date, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
			task.OwnerID, task.ID, task.Title, task.Description, string(task.Status), due, task.CreatedAt, task.UpdatedAt,
		).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			return models.Task{}, fmt.Errorf("failed to save task: %w", err)
		}
		if applied {
			return task, nil
		}
	}
	return models.Task{}, fmt.Errorf("failed to save task %s: row kept changing under concurrent writes", task.ID)
}

const selectTaskColumns = `SELECT task_id, user_id, title, description, status, due_date, created_at, updated_at FROM tasks`

func (r *CassandraTaskRepository) FindByIDAndOwner(ctx context.Context, taskID, ownerID string) (*models.Task, error) {
	iter := r.session.Query(selectTaskColumns+` WHERE user_id = ? AND task_id = ?`, ownerID, taskID).
		WithContext(ctx).Iter()

	task, found := scanTask(iter)
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &task, nil
}

func (r *CassandraTaskRepository) FindAllByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	iter := r.session.Query(selectTaskColumns+` WHERE user_id = ?`, ownerID).WithContext(ctx).Iter()

	tasks := make([]models.Task, 0)
	for {
		task, ok := scanTask(iter)
		if !ok {
			break
		}
		tasks = append(tasks, task)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	return tasks, nil
}

// Delete relies on the lightweight transaction's applied flag to report
// whether the row existed.
func (r *CassandraTaskRepository) Delete(ctx context.Context, taskID, ownerID string) (bool, error) {
	applied, err := r.session.Query(
		`DELETE FROM tasks WHERE user_id = ? AND task_id = ? IF EXISTS`, ownerID, taskID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return applied, nil
}

func scanTask(iter *gocql.Iter) (models.Task, bool) {
	var (
		task   models.Task
		status string
		due    time.Time
	)

	if !iter.Scan(&task.ID, &task.OwnerID, &task.Title, &task.Description, &status, &due, &task.CreatedAt, &task.UpdatedAt) {
		return models.Task{}, false
	}

	task.Status = models.TaskStatus(status)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	// null timestamps scan as the zero time
	if !due.IsZero() {
		due = due.UTC()
		task.DueDate = &due
	}
	return task, true
}
