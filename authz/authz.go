// Package authz decides which tasks a caller may see, change or remove.
package authz

import (
	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"
)

func isOwner(caller models.Caller, task *models.Task) bool {
	return task.AssignedTo == caller.ID || task.CreatedBy == caller.ID
}

// CanView allows admins, the assignee and the creator.
func CanView(caller models.Caller, task *models.Task) bool {
	return caller.IsAdmin() || isOwner(caller, task)
}

// CanUpdate uses the same rule as CanView.
func CanUpdate(caller models.Caller, task *models.Task) bool {
	return CanView(caller, task)
}

// CanDelete is narrower than CanUpdate: an assignee who did not create the task may not delete it.
func CanDelete(caller models.Caller, task *models.Task) bool {
	return caller.IsAdmin() || task.CreatedBy == caller.ID
}

// Visibility is the list predicate for a caller. Admins are unrestricted.
func Visibility(caller models.Caller) query.Expr {
	if caller.IsAdmin() {
		return query.All()
	}
	return query.Or(
		query.Eq(query.FieldAssignedTo, caller.ID),
		query.Eq(query.FieldCreatedBy, caller.ID),
	)
}
