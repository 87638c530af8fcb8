package users

import (
	"context"
	"fmt"

	"task-tracker/tasks-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDirectory reads summaries straight from the users collection.
type MongoDirectory struct {
	usersCollection *mongo.Collection
}

func NewMongoDirectory(usersCollection *mongo.Collection) *MongoDirectory {
	return &MongoDirectory{usersCollection: usersCollection}
}

func (d *MongoDirectory) Resolve(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	ids = Unique(ids)
	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	projection := bson.M{"username": 1, "email": 1, "profile": 1}
	cursor, err := d.usersCollection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []models.UserSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for _, u := range summaries {
		out[u.ID] = u
	}
	return out, nil
}
