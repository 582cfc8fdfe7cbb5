package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-management/microservices/tasks-service/logging"
	"task-management/microservices/tasks-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type taskDocument struct {
	TaskID      string     `bson:"taskId"`
	UserID      string     `bson:"userId"`
	Title       string     `bson:"title"`
	Description string     `bson:"description"`
	Status      string     `bson:"status"`
	DueDate     *time.Time `bson:"dueDate,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

func toDocument(t models.Task) taskDocument {
	return taskDocument{
		TaskID:      t.ID,
		UserID:      t.OwnerID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d taskDocument) toTask() models.Task {
	task := models.Task{
		ID:          d.TaskID,
		OwnerID:     d.UserID,
		Title:       d.Title,
		Description: d.Description,
		Status:      models.TaskStatus(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.DueDate != nil {
		due := d.DueDate.UTC()
		task.DueDate = &due
	}
	return task
}

type MongoTaskRepository struct {
	tasksCollection *mongo.Collection
}

var _ TaskRepository = (*MongoTaskRepository)(nil)

func NewMongoTaskRepository(client *mongo.Client, dbName, collection string) *MongoTaskRepository {
	return &MongoTaskRepository{
		tasksCollection: client.Database(dbName).Collection(collection),
	}
}

// EnsureIndexes creates the unique (taskId, userId) index and the userId
// index used by owner listings. Safe to call on every start.
func (r *MongoTaskRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "taskId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("taskId_userId"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("userId"),
		},
	}

	if _, err := r.tasksCollection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create task indexes: %w", err)
	}
	logging.Logger.Infof("Event ID: MONGO_INDEXES_READY, Description: Indexes ensured on collection %s", r.tasksCollection.Name())
	return nil
}

func (r *MongoTaskRepository) Save(ctx context.Context, task models.Task) (models.Task, error) {
	filter := bson.M{"taskId": task.ID, "userId": task.OwnerID}
	opts := options.Replace().SetUpsert(true)

	if _, err := r.tasksCollection.ReplaceOne(ctx, filter, toDocument(task), opts); err != nil {
		return models.Task{}, fmt.Errorf("failed to save task: %w", err)
	}
	return task, nil
}

func (r *MongoTaskRepository) FindByIDAndOwner(ctx context.Context, taskID, ownerID string) (*models.Task, error) {
	var doc taskDocument
	err := r.tasksCollection.FindOne(ctx, bson.M{"taskId": taskID, "userId": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	task := doc.toTask()
	return &task, nil
}

func (r *MongoTaskRepository) FindAllByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	cursor, err := r.tasksCollection.Find(ctx, bson.M{"userId": ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	defer cursor.Close(ctx)

	tasks := make([]models.Task, 0)
	for cursor.Next(ctx) {
		var doc taskDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode task: %w", err)
		}
		tasks = append(tasks, doc.toTask())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return tasks, nil
}

func (r *MongoTaskRepository) Delete(ctx context.Context, taskID, ownerID string) (bool, error) {
	result, err := r.tasksCollection.DeleteOne(ctx, bson.M{"taskId": taskID, "userId": ownerID})
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return result.DeletedCount > 0, nil
}
