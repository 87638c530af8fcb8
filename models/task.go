package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

// TaskStatuses lists every valid status in workflow order.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{StatusPending, StatusInProgress, StatusCompleted}
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is the document stored in the tasks collection.
// Completed and CompletedAt are derived from Status and are only written by the lifecycle package.
type Task struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	Status      TaskStatus         `json:"status" bson:"status"`
	Priority    Priority           `json:"priority" bson:"priority"`
	DueDate     *time.Time         `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	AssignedTo  primitive.ObjectID `json:"assignedTo" bson:"assignedTo"`
	CreatedBy   primitive.ObjectID `json:"createdBy" bson:"createdBy"`
	Tags        []string           `json:"tags" bson:"tags"`
	Completed   bool               `json:"completed" bson:"completed"`
	CompletedAt *time.Time         `json:"completedAt" bson:"completedAt"`
	Version     int64              `json:"version" bson:"version"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate a task without touching store-owned state.
func (t *Task) Clone() *Task {
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	if t.Tags != nil {
		c.Tags = make([]string, len(t.Tags))
		copy(c.Tags, t.Tags)
	}
	return &c
}

// TaskView is the read model returned to callers: references resolved to user summaries
// and the overdue flag computed at read time.
type TaskView struct {
	ID          primitive.ObjectID `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      TaskStatus         `json:"status"`
	Priority    Priority           `json:"priority"`
	DueDate     *time.Time         `json:"dueDate,omitempty"`
	AssignedTo  UserSummary        `json:"assignedTo"`
	CreatedBy   UserSummary        `json:"createdBy"`
	Tags        []string           `json:"tags"`
	Completed   bool               `json:"completed"`
	CompletedAt *time.Time         `json:"completedAt"`
	IsOverdue   bool               `json:"isOverdue"`
	Version     int64              `json:"version"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}
