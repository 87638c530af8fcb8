// Package users resolves user references on tasks to display summaries.
// The users collection belongs to the users service; this package only reads it.
package users

import (
	"context"

	"task-tracker/tasks-service/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Directory resolves user ids to summaries. Unknown ids are absent from the result.
type Directory interface {
	Resolve(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error)
}

// StaticDirectory is a fixed in-memory directory.
type StaticDirectory map[primitive.ObjectID]models.UserSummary

func (d StaticDirectory) Resolve(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := d[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// Unique drops zero and repeated ids, keeping first-seen order.
func Unique(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
