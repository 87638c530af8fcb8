package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func testMongoURI() string {
	if uri := os.Getenv("TEST_MONGO_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

// setupMongoStore returns a store over a throwaway collection, or skips when MongoDB is unavailable.
func setupMongoStore(t *testing.T) (*MongoStore, *mongo.Collection) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(testMongoURI()).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("Skipping test: MongoDB not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("Skipping test: MongoDB ping failed: %v", err)
	}

	coll := client.Database("tasks_service_test").Collection(fmt.Sprintf("tasks_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = coll.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := NewMongoStore(coll)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s, coll
}

func TestMongoStoreRoundTrip(t *testing.T) {
	s, _ := setupMongoStore(t)
	ctx := context.Background()

	due := Clock().Add(48 * time.Hour)
	task := newTask(primitive.NewObjectID(), "Round trip")
	task.DueDate = &due
	task.Tags = []string{"backend"}
	require.NoError(t, s.Insert(ctx, task))

	got, err := s.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.True(t, task.DueDate.Equal(*got.DueDate))
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, []string{"backend"}, got.Tags)
	assert.Equal(t, int64(1), got.Version)
}

func TestMongoStoreSearchAndVisibility(t *testing.T) {
	s, _ := setupMongoStore(t)
	ctx := context.Background()
	me := primitive.NewObjectID()
	other := primitive.NewObjectID()

	require.NoError(t, s.Insert(ctx, newTask(me, "Quarterly REPORT")))
	require.NoError(t, s.Insert(ctx, newTask(other, "Quarterly report")))
	require.NoError(t, s.Insert(ctx, newTask(me, "Groceries (a+b)")))

	visible := query.Or(query.Eq(query.FieldAssignedTo, me), query.Eq(query.FieldCreatedBy, me))
	q, err := query.Build(query.ListOptions{Search: "report"}, visible)
	require.NoError(t, err)

	tasks, err := s.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Quarterly REPORT", tasks[0].Title)

	q, err = query.Build(query.ListOptions{Search: "(a+b)"}, visible)
	require.NoError(t, err)
	n, err := s.Count(ctx, q.Filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "search text is matched literally")
}

func TestMongoStoreVersionConflict(t *testing.T) {
	s, _ := setupMongoStore(t)
	ctx := context.Background()

	task := newTask(primitive.NewObjectID(), "Contended")
	require.NoError(t, s.Insert(ctx, task))

	stale := task.Clone()
	task.Title = "Winner"
	require.NoError(t, s.Update(ctx, task, task.Version))

	stale.Title = "Loser"
	assert.ErrorIs(t, s.Update(ctx, stale, stale.Version), ErrVersionConflict)
	assert.ErrorIs(t, s.Delete(ctx, primitive.NewObjectID(), 1), ErrNotFound)
}

func TestMongoStoreLegacyDocumentWithoutVersion(t *testing.T) {
	s, coll := setupMongoStore(t)
	ctx := context.Background()

	id := primitive.NewObjectID()
	owner := primitive.NewObjectID()
	_, err := coll.InsertOne(ctx, bson.M{
		"_id": id, "title": "Legacy", "status": "pending", "priority": "low",
		"assignedTo": owner, "createdBy": owner, "tags": bson.A{}, "completed": false,
	})
	require.NoError(t, err)

	task, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), task.Version)

	task.Status = models.StatusInProgress
	require.NoError(t, s.Update(ctx, task, task.Version))
	assert.Equal(t, int64(1), task.Version)
}

func TestMongoStoreCountBy(t *testing.T) {
	s, _ := setupMongoStore(t)
	ctx := context.Background()
	owner := primitive.NewObjectID()

	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityHigh, models.PriorityLow} {
		task := newTask(owner, "p")
		task.Priority = p
		require.NoError(t, s.Insert(ctx, task))
	}

	counts, err := s.CountBy(ctx, query.FieldPriority, query.All())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"high": 2, "low": 1}, counts)
}
