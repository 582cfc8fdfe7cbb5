package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"task-management/microservices/tasks-service/logging"
	"task-management/microservices/tasks-service/models"

	"github.com/redis/go-redis/v9"
)

// CachedTaskRepository puts a Redis cache-aside layer in front of another
// repository for point lookups. Writes go to the backing store first, then
// bump a per-task version key and evict the cached entry. A lookup that
// misses fills the cache under WATCH on that version key, so a row read
// before a concurrent write is never cached after it. Listings always hit
// the backing store. Cache failures are logged and never fail a call that
// the store served.
type CachedTaskRepository struct {
	next   TaskRepository
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ TaskRepository = (*CachedTaskRepository)(nil)

func NewCachedTaskRepository(next TaskRepository, client *redis.Client, ttl time.Duration) *CachedTaskRepository {
	return &CachedTaskRepository{
		next:   next,
		client: client,
		prefix: "tasks:",
		ttl:    ttl,
	}
}

func (r *CachedTaskRepository) key(taskID, ownerID string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, ownerID, taskID)
}

func (r *CachedTaskRepository) versionKey(taskID, ownerID string) string {
	return r.key(taskID, ownerID) + ":version"
}

func (r *CachedTaskRepository) Save(ctx context.Context, task models.Task) (models.Task, error) {
	saved, err := r.next.Save(ctx, task)
	if err != nil {
		return models.Task{}, err
	}
	r.evict(ctx, task.ID, task.OwnerID)
	return saved, nil
}

func (r *CachedTaskRepository) FindByIDAndOwner(ctx context.Context, taskID, ownerID string) (*models.Task, error) {
	key := r.key(taskID, ownerID)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var task models.Task
		if err := json.Unmarshal(data, &task); err == nil {
			return &task, nil
		}
		logging.Logger.Warnf("Event ID: TASK_CACHE_CORRUPT, Description: Dropping undecodable cache entry %s", key)
		r.evict(ctx, taskID, ownerID)
	case !errors.Is(err, redis.Nil):
		logging.Logger.Warnf("Event ID: TASK_CACHE_GET_FAILED, Description: Cache read for %s failed: %v", key, err)
	}

	var (
		task    *models.Task
		findErr error
		loaded  bool
	)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		task, findErr = r.next.FindByIDAndOwner(ctx, taskID, ownerID)
		loaded = true
		if findErr != nil || task == nil {
			return nil
		}

		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, r.versionKey(taskID, ownerID))

	if !loaded {
		logging.Logger.Warnf("Event ID: TASK_CACHE_WATCH_FAILED, Description: Reading %s without cache: %v", key, err)
		return r.next.FindByIDAndOwner(ctx, taskID, ownerID)
	}
	switch {
	case errors.Is(err, redis.TxFailedErr):
		logging.Logger.Debugf("Event ID: TASK_CACHE_FILL_SKIPPED, Description: %s changed while loading, not caching", key)
	case err != nil:
		logging.Logger.Warnf("Event ID: TASK_CACHE_SET_FAILED, Description: Cache write for %s failed: %v", key, err)
	}
	return task, findErr
}

func (r *CachedTaskRepository) FindAllByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	return r.next.FindAllByOwner(ctx, ownerID)
}

func (r *CachedTaskRepository) Delete(ctx context.Context, taskID, ownerID string) (bool, error) {
	deleted, err := r.next.Delete(ctx, taskID, ownerID)
	if err != nil {
		return false, err
	}
	r.evict(ctx, taskID, ownerID)
	return deleted, nil
}

// evict bumps the version key before dropping the entry so that any fill
// already watching it is aborted.
func (r *CachedTaskRepository) evict(ctx context.Context, taskID, ownerID string) {
	key, version := r.key(taskID, ownerID), r.versionKey(taskID, ownerID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, version)
		pipe.Expire(ctx, version, r.ttl)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: TASK_CACHE_EVICT_FAILED, Description: Could not evict %s, entry may be stale for up to %s: %v", key, r.ttl, err)
	}
}
