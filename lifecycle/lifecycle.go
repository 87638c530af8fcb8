// Package lifecycle keeps a task's derived completion fields consistent with its status.
package lifecycle

import (
	"time"

	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"
)

type Lifecycle struct {
	now func() time.Time
}

// New returns a Lifecycle reading the current time from now; nil means time.Now.
func New(now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{now: now}
}

func (l *Lifecycle) Now() time.Time {
	return l.now()
}

// Transition applies the derived-field rule after task.Status was set, given the status
// it had before. Pass an empty from for a task that is being created.
func (l *Lifecycle) Transition(task *models.Task, from models.TaskStatus) {
	if task.Status == from {
		return
	}
	if task.Status == models.StatusCompleted {
		at := l.now()
		task.Completed = true
		task.CompletedAt = &at
		return
	}
	task.Completed = false
	task.CompletedAt = nil
}

// MarkCompleted moves the task to completed. Every call refreshes CompletedAt,
// including on a task that is already completed.
func (l *Lifecycle) MarkCompleted(task *models.Task) {
	at := l.now()
	task.Status = models.StatusCompleted
	task.Completed = true
	task.CompletedAt = &at
}

// IsOverdue is computed on every read and never stored.
func (l *Lifecycle) IsOverdue(task *models.Task) bool {
	return task.DueDate != nil &&
		task.DueDate.Before(l.now()) &&
		task.Status != models.StatusCompleted
}

// Overdue is IsOverdue as a store predicate.
func (l *Lifecycle) Overdue() query.Expr {
	return query.And(
		query.Before(query.FieldDueDate, l.now()),
		query.Ne(query.FieldStatus, models.StatusCompleted),
	)
}
