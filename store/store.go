// Package store persists tasks. MongoStore is the production document store; MemoryStore
// evaluates the same predicate tree in process and backs tests and local runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document was modified concurrently")
)

// DuplicateKeyError reports a unique index violation on Field.
type DuplicateKeyError struct {
	Field string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Err }

// TaskStore is the document store contract the task service depends on.
// Update and Delete only apply when the stored version equals expectedVersion;
// on success Update bumps task.Version and task.UpdatedAt in place.
type TaskStore interface {
	Insert(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error)
	Find(ctx context.Context, q query.ListQuery) ([]*models.Task, error)
	Count(ctx context.Context, filter query.Expr) (int64, error)
	CountBy(ctx context.Context, field string, filter query.Expr) (map[string]int64, error)
	Update(ctx context.Context, task *models.Task, expectedVersion int64) error
	Delete(ctx context.Context, id primitive.ObjectID, expectedVersion int64) error
	Ping(ctx context.Context) error
}

// Clock returns the current UTC time at the millisecond precision MongoDB keeps,
// so a task read back compares equal to the one that was written.
func Clock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
