package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	tasksCollection *mongo.Collection
	now             func() time.Time
}

func NewMongoStore(tasksCollection *mongo.Collection) *MongoStore {
	return &MongoStore{
		tasksCollection: tasksCollection,
		now:             Clock,
	}
}

// EnsureIndexes creates the indexes backing the visibility predicate, filters and sorts.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: query.FieldAssignedTo, Value: 1}}},
		{Keys: bson.D{{Key: query.FieldCreatedBy, Value: 1}}},
		{Keys: bson.D{{Key: query.FieldStatus, Value: 1}, {Key: query.FieldPriority, Value: 1}}},
		{Keys: bson.D{{Key: query.FieldDueDate, Value: 1}}},
		{Keys: bson.D{{Key: query.FieldCreatedAt, Value: -1}}},
	}
	if _, err := s.tasksCollection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create task indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, task *models.Task) error {
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Version = 1

	if _, err := s.tasksCollection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to create task: %w", translateWriteError(err))
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	err := s.tasksCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("task %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("error fetching task: %w", err)
	}
	return &task, nil
}

func (s *MongoStore) Find(ctx context.Context, q query.ListQuery) ([]*models.Task, error) {
	opts := options.Find().
		SetSort(q.Sort.Document()).
		SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := s.tasksCollection.Find(ctx, filterOf(q.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	defer cursor.Close(ctx)

	tasks := []*models.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

func (s *MongoStore) Count(ctx context.Context, filter query.Expr) (int64, error) {
	n, err := s.tasksCollection.CountDocuments(ctx, filterOf(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

func (s *MongoStore) CountBy(ctx context.Context, field string, filter query.Expr) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filterOf(filter)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.tasksCollection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to group tasks by %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	var buckets []struct {
		Key   *string `bson:"_id"`
		Count int64   `bson:"count"`
	}
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, fmt.Errorf("failed to decode %s buckets: %w", field, err)
	}

	counts := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		if b.Key == nil {
			continue
		}
		counts[*b.Key] = b.Count
	}
	return counts, nil
}

func (s *MongoStore) Update(ctx context.Context, task *models.Task, expectedVersion int64) error {
	now := s.now()
	update := bson.M{
		"$set": bson.M{
			"title":       task.Title,
			"description": task.Description,
			"status":      task.Status,
			"priority":    task.Priority,
			"dueDate":     task.DueDate,
			"assignedTo":  task.AssignedTo,
			"tags":        task.Tags,
			"completed":   task.Completed,
			"completedAt": task.CompletedAt,
			"updatedAt":   now,
			"version":     expectedVersion + 1,
		},
	}

	result, err := s.tasksCollection.UpdateOne(ctx, versioned(task.ID, expectedVersion), update)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", translateWriteError(err))
	}
	if result.MatchedCount == 0 {
		return s.missOrConflict(ctx, task.ID, expectedVersion)
	}

	task.UpdatedAt = now
	task.Version = expectedVersion + 1
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id primitive.ObjectID, expectedVersion int64) error {
	result, err := s.tasksCollection.DeleteOne(ctx, versioned(id, expectedVersion))
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.DeletedCount == 0 {
		return s.missOrConflict(ctx, id, expectedVersion)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.tasksCollection.Database().Client().Ping(ctx, nil)
}

// missOrConflict tells a vanished document apart from one whose version moved on.
func (s *MongoStore) missOrConflict(ctx context.Context, id primitive.ObjectID, expectedVersion int64) error {
	n, err := s.tasksCollection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id.Hex(), ErrNotFound)
	}
	return fmt.Errorf("task %s at version %d: %w", id.Hex(), expectedVersion, ErrVersionConflict)
}

// versioned matches a document at an exact version. Documents written before versioning
// have no version field and match version 0.
func versioned(id primitive.ObjectID, version int64) bson.D {
	if version == 0 {
		return bson.D{
			{Key: "_id", Value: id},
			{Key: "version", Value: bson.D{{Key: "$in", Value: bson.A{0, nil}}}},
		}
	}
	return bson.D{{Key: "_id", Value: id}, {Key: "version", Value: version}}
}

func filterOf(e query.Expr) bson.D {
	if e == nil {
		return bson.D{}
	}
	return e.Filter()
}

var dupKeyField = regexp.MustCompile(`dup key: \{ ?"?([A-Za-z0-9_.]+)"?:`)

func translateWriteError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	field := "unknown"
	if m := dupKeyField.FindStringSubmatch(err.Error()); m != nil {
		field = m[1]
	}
	return &DuplicateKeyError{Field: field, Err: err}
}
