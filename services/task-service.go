package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-tracker/tasks-service/authz"
	"task-tracker/tasks-service/lifecycle"
	"task-tracker/tasks-service/logging"
	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"
	"task-tracker/tasks-service/stats"
	"task-tracker/tasks-service/store"
	"task-tracker/tasks-service/users"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatsScope selects which tasks GetStats counts.
type StatsScope string

const (
	StatsScopeGlobal StatsScope = "global"
	StatsScopeCaller StatsScope = "caller"
)

func ParseStatsScope(s string) (StatsScope, error) {
	switch StatsScope(s) {
	case StatsScopeGlobal, StatsScopeCaller:
		return StatsScope(s), nil
	}
	return "", fmt.Errorf("unknown stats scope %q", s)
}

// TaskPage is one page of a list result.
type TaskPage struct {
	Tasks      []models.TaskView `json:"tasks"`
	Pagination query.Pagination  `json:"pagination"`
}

type TaskService struct {
	store      store.TaskStore
	directory  users.Directory
	lifecycle  *lifecycle.Lifecycle
	validator  *Validator
	stats      *stats.Aggregator
	statsScope StatsScope
}

func NewTaskService(taskStore store.TaskStore, directory users.Directory, lc *lifecycle.Lifecycle, scope StatsScope) *TaskService {
	if lc == nil {
		lc = lifecycle.New(store.Clock)
	}
	if scope == "" {
		scope = StatsScopeGlobal
	}
	return &TaskService{
		store:      taskStore,
		directory:  directory,
		lifecycle:  lc,
		validator:  NewValidator(lc.Now),
		stats:      stats.NewAggregator(taskStore, lc),
		statsScope: scope,
	}
}

func (s *TaskService) CreateTask(ctx context.Context, caller models.Caller, in CreateTaskInput) (*models.TaskView, error) {
	if err := s.validator.Create(&in); err != nil {
		return nil, err
	}

	assignee := caller.ID
	if in.AssignedTo != "" {
		id, err := primitive.ObjectIDFromHex(in.AssignedTo)
		if err != nil {
			return nil, InvalidField("assignedTo")
		}
		assignee = id
	}

	task := &models.Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      models.StatusPending,
		Priority:    models.PriorityMedium,
		DueDate:     in.DueDate,
		AssignedTo:  assignee,
		CreatedBy:   caller.ID,
		Tags:        in.Tags,
	}
	if in.Status != "" {
		task.Status = models.TaskStatus(in.Status)
	}
	if in.Priority != "" {
		task.Priority = models.Priority(in.Priority)
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	s.lifecycle.Transition(task, "")

	if err := s.store.Insert(ctx, task); err != nil {
		return nil, s.storeError(err)
	}

	logging.Logger.WithFields(logrus.Fields{"taskId": task.ID.Hex(), "userId": caller.ID.Hex()}).
		Info("Event ID: TASK_CREATED, Description: Task created successfully")
	return s.view(ctx, task), nil
}

func (s *TaskService) ListTasks(ctx context.Context, caller models.Caller, in ListTasksInput) (*TaskPage, error) {
	opts, err := s.validator.List(in)
	if err != nil {
		return nil, err
	}
	q, err := query.Build(opts, authz.Visibility(caller))
	if errors.Is(err, query.ErrInvalidOrder) {
		return nil, InvalidField("sortOrder")
	}
	if err != nil {
		return nil, InvalidField("sortBy")
	}

	tasks, err := s.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Count(ctx, q.Filter)
	if err != nil {
		return nil, err
	}

	return &TaskPage{
		Tasks:      s.views(ctx, tasks),
		Pagination: query.NewPagination(q.Page, q.Limit, total),
	}, nil
}

func (s *TaskService) GetTask(ctx context.Context, caller models.Caller, taskID string) (*models.TaskView, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !authz.CanView(caller, task) {
		return nil, &AccessDeniedError{Action: "view"}
	}
	return s.view(ctx, task), nil
}

// UpdateTask applies a partial update. The write only succeeds if the task is unchanged
// since it was read; otherwise a ConflictError on "version" is returned.
func (s *TaskService) UpdateTask(ctx context.Context, caller models.Caller, taskID string, in UpdateTaskInput) (*models.TaskView, error) {
	id, err := parseID(taskID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Update(&in); err != nil {
		return nil, err
	}

	task, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanUpdate(caller, task) {
		return nil, &AccessDeniedError{Action: "update"}
	}

	if in.DueDate != nil && !sameTime(task.DueDate, in.DueDate) && !s.validator.Future(*in.DueDate) {
		return nil, InvalidField("dueDate")
	}

	previous := task.Status
	if err := apply(task, in); err != nil {
		return nil, err
	}
	s.lifecycle.Transition(task, previous)

	if err := s.store.Update(ctx, task, task.Version); err != nil {
		return nil, s.storeError(err)
	}

	logging.Logger.WithFields(logrus.Fields{"taskId": task.ID.Hex(), "userId": caller.ID.Hex(), "version": task.Version}).
		Info("Event ID: TASK_UPDATED, Description: Task updated successfully")
	return s.view(ctx, task), nil
}

// CompleteTask moves a task to completed. Repeated calls refresh completedAt.
func (s *TaskService) CompleteTask(ctx context.Context, caller models.Caller, taskID string) (*models.TaskView, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !authz.CanUpdate(caller, task) {
		return nil, &AccessDeniedError{Action: "update"}
	}

	s.lifecycle.MarkCompleted(task)
	if err := s.store.Update(ctx, task, task.Version); err != nil {
		return nil, s.storeError(err)
	}

	logging.Logger.WithFields(logrus.Fields{"taskId": task.ID.Hex(), "userId": caller.ID.Hex()}).
		Info("Event ID: TASK_COMPLETED, Description: Task marked as completed")
	return s.view(ctx, task), nil
}

// DeleteTask is restricted to admins and the task's creator. An assignee who can view
// and update a task cannot delete it.
func (s *TaskService) DeleteTask(ctx context.Context, caller models.Caller, taskID string) error {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if !authz.CanDelete(caller, task) {
		return &AccessDeniedError{Action: "delete"}
	}

	if err := s.store.Delete(ctx, task.ID, task.Version); err != nil {
		return s.storeError(err)
	}

	logging.Logger.WithFields(logrus.Fields{"taskId": task.ID.Hex(), "userId": caller.ID.Hex()}).
		Info("Event ID: TASK_DELETED, Description: Task deleted successfully")
	return nil
}

// GetStats counts every task, or only the caller's visible tasks when the service
// runs with StatsScopeCaller.
func (s *TaskService) GetStats(ctx context.Context, caller models.Caller) (models.TaskStats, error) {
	scope := query.All()
	if s.statsScope == StatsScopeCaller {
		scope = authz.Visibility(caller)
	}
	return s.stats.Compute(ctx, scope)
}

// Ping reports whether the task store is reachable.
func (s *TaskService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *TaskService) load(ctx context.Context, taskID string) (*models.Task, error) {
	id, err := parseID(taskID)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, id)
}

func (s *TaskService) find(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	task, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError(err)
	}
	return task, nil
}

func (s *TaskService) storeError(err error) error {
	var dup *store.DuplicateKeyError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return &ConflictError{Field: "version", Err: err}
	case errors.As(err, &dup):
		return &ConflictError{Field: dup.Field, Err: err}
	}
	return err
}

func parseID(taskID string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return id, nil
}

func apply(task *models.Task, in UpdateTaskInput) error {
	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Status != nil {
		task.Status = models.TaskStatus(*in.Status)
	}
	if in.Priority != nil {
		task.Priority = models.Priority(*in.Priority)
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate
	}
	if in.AssignedTo != nil {
		id, err := primitive.ObjectIDFromHex(*in.AssignedTo)
		if err != nil {
			return InvalidField("assignedTo")
		}
		task.AssignedTo = id
	}
	if in.Tags != nil {
		task.Tags = in.Tags
	}
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// view resolves the user references of a single task.
func (s *TaskService) view(ctx context.Context, task *models.Task) *models.TaskView {
	v := s.views(ctx, []*models.Task{task})
	return &v[0]
}

// views resolves assignee and creator summaries in one directory call. When the directory
// fails the tasks are still returned with id-only summaries.
func (s *TaskService) views(ctx context.Context, tasks []*models.Task) []models.TaskView {
	ids := make([]primitive.ObjectID, 0, 2*len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.AssignedTo, t.CreatedBy)
	}

	var summaries map[primitive.ObjectID]models.UserSummary
	if s.directory != nil && len(ids) > 0 {
		resolved, err := s.directory.Resolve(ctx, users.Unique(ids))
		if err != nil {
			logging.Logger.Warnf("Event ID: USER_LOOKUP_FAILED, Description: Returning unpopulated user references: %v", err)
		} else {
			summaries = resolved
		}
	}

	summary := func(id primitive.ObjectID) models.UserSummary {
		if u, ok := summaries[id]; ok {
			return u
		}
		return models.UserSummary{ID: id}
	}

	out := make([]models.TaskView, len(tasks))
	for i, t := range tasks {
		out[i] = models.TaskView{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Status:      t.Status,
			Priority:    t.Priority,
			DueDate:     t.DueDate,
			AssignedTo:  summary(t.AssignedTo),
			CreatedBy:   summary(t.CreatedBy),
			Tags:        t.Tags,
			Completed:   t.Completed,
			CompletedAt: t.CompletedAt,
			IsOverdue:   s.lifecycle.IsOverdue(t),
			Version:     t.Version,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		}
	}
	return out
}
