package authz

import (
	"testing"

	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestPermissions(t *testing.T) {
	creator := models.Caller{ID: primitive.NewObjectID(), Role: models.RoleUser}
	assignee := models.Caller{ID: primitive.NewObjectID(), Role: models.RoleUser}
	stranger := models.Caller{ID: primitive.NewObjectID(), Role: models.RoleUser}
	admin := models.Caller{ID: primitive.NewObjectID(), Role: models.RoleAdmin}

	task := &models.Task{AssignedTo: assignee.ID, CreatedBy: creator.ID}

	tests := []struct {
		name    string
		caller  models.Caller
		view    bool
		update  bool
		canDrop bool
	}{
		{"creator", creator, true, true, true},
		{"assignee", assignee, true, true, false},
		{"stranger", stranger, false, false, false},
		{"admin", admin, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.view, CanView(tt.caller, task))
			assert.Equal(t, tt.update, CanUpdate(tt.caller, task))
			assert.Equal(t, tt.canDrop, CanDelete(tt.caller, task))
			// The list predicate and the single-task check must agree.
			assert.Equal(t, tt.view, Visibility(tt.caller).Match(task))
		})
	}
}

func TestVisibilityForAdminIsUnrestricted(t *testing.T) {
	admin := models.Caller{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
	assert.True(t, query.IsAll(Visibility(admin)))
}
