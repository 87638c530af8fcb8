package services

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateTaskInput is the body of a create request.
type CreateTaskInput struct {
	Title       string     `json:"title" validate:"required,min=3,max=100"`
	Description string     `json:"description" validate:"max=500"`
	Status      string     `json:"status" validate:"omitempty,taskstatus"`
	Priority    string     `json:"priority" validate:"omitempty,priority"`
	DueDate     *time.Time `json:"dueDate" validate:"omitnil,future"`
	AssignedTo  string     `json:"assignedTo" validate:"omitempty,mongodb"`
	Tags        []string   `json:"tags" validate:"omitempty,dive,min=1,max=20"`
}

// UpdateTaskInput is a partial update. Nil fields are left untouched; a nil Tags slice
// means "not supplied" while an empty one clears the tags. DueDate is only required to be
// in the future when it differs from the stored value, which the service checks.
type UpdateTaskInput struct {
	Title       *string    `json:"title" validate:"omitnil,min=3,max=100"`
	Description *string    `json:"description" validate:"omitnil,max=500"`
	Status      *string    `json:"status" validate:"omitnil,taskstatus"`
	Priority    *string    `json:"priority" validate:"omitnil,priority"`
	DueDate     *time.Time `json:"dueDate"`
	AssignedTo  *string    `json:"assignedTo" validate:"omitnil,mongodb"`
	Tags        []string   `json:"tags" validate:"omitempty,dive,min=1,max=20"`
}

// ListTasksInput carries the raw list criteria taken from the query string.
type ListTasksInput struct {
	Status     string `json:"status" validate:"omitempty,taskstatus"`
	Priority   string `json:"priority" validate:"omitempty,priority"`
	AssignedTo string `json:"assignedTo" validate:"omitempty,mongodb"`
	Search     string `json:"search" validate:"max=100"`
	Page       *int64 `json:"page" validate:"omitnil,gte=1"`
	Limit      *int64 `json:"limit" validate:"omitnil,gte=1,lte=100"`
	SortBy     string `json:"sortBy" validate:"omitempty,oneof=createdAt updatedAt dueDate title status priority"`
	SortOrder  string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

var fieldMessages = map[string]string{
	"title":       "Title must be between 3 and 100 characters",
	"description": "Description cannot exceed 500 characters",
	"status":      "Status must be one of: " + joinValues(models.TaskStatuses()),
	"priority":    "Priority must be one of: " + joinValues(models.Priorities()),
	"dueDate":     "Due date must be a valid date in the future",
	"assignedTo":  "Assigned to must be a valid user ID",
	"tags":        "Each tag must be between 1 and 20 characters",
	"search":      "Search cannot exceed 100 characters",
	"page":        "Page must be a positive integer",
	"limit":       "Limit must be between 1 and 100",
	"sortBy":      "Sort field must be one of: createdAt, updatedAt, dueDate, title, status, priority",
	"sortOrder":   "Sort order must be asc or desc",
}

// Validator normalizes request input and checks it against the task field rules.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled()), now: now}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.validate.RegisterValidation("future", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && v.Future(t)
	})
	_ = v.validate.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		return models.TaskStatus(fl.Field().String()).Valid()
	})
	_ = v.validate.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return models.Priority(fl.Field().String()).Valid()
	})
	return v
}

// Create trims text, lower-cases tags and checks the result. in is modified in place.
func (v *Validator) Create(in *CreateTaskInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.AssignedTo = strings.TrimSpace(in.AssignedTo)
	in.Tags = normalizeTags(in.Tags)
	in.DueDate = normalizeTime(in.DueDate)
	return v.check(in)
}

func (v *Validator) Update(in *UpdateTaskInput) error {
	in.Title = trimPtr(in.Title)
	in.Description = trimPtr(in.Description)
	in.AssignedTo = trimPtr(in.AssignedTo)
	in.Tags = normalizeTags(in.Tags)
	in.DueDate = normalizeTime(in.DueDate)
	return v.check(in)
}

// List checks the list criteria and converts them to store options.
func (v *Validator) List(in ListTasksInput) (query.ListOptions, error) {
	in.Search = strings.TrimSpace(in.Search)
	in.SortOrder = strings.ToLower(in.SortOrder)
	if err := v.check(&in); err != nil {
		return query.ListOptions{}, err
	}

	opts := query.ListOptions{
		Status:    models.TaskStatus(in.Status),
		Priority:  models.Priority(in.Priority),
		Search:    in.Search,
		SortBy:    in.SortBy,
		SortOrder: in.SortOrder,
	}
	if in.Page != nil {
		opts.Page = *in.Page
	}
	if in.Limit != nil {
		opts.Limit = *in.Limit
	}
	if in.AssignedTo != "" {
		id, err := primitive.ObjectIDFromHex(in.AssignedTo)
		if err != nil {
			return query.ListOptions{}, InvalidField("assignedTo")
		}
		opts.AssignedTo = &id
	}
	return opts, nil
}

// InvalidField builds a single-field ValidationError with the standard message for field.
func InvalidField(field string) *ValidationError {
	msg, ok := fieldMessages[field]
	if !ok {
		msg = field + " is invalid"
	}
	return invalidField(field, msg)
}

func (v *Validator) check(in any) error {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{}
	seen := make(map[string]bool)
	for _, fe := range verrs {
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		if seen[field] {
			continue
		}
		seen[field] = true

		msg, ok := fieldMessages[field]
		if !ok {
			msg = field + " is invalid"
		}
		if field == "title" && fe.Tag() == "required" {
			msg = "Title is required"
		}
		out.Fields = append(out.Fields, FieldError{Field: field, Message: msg})
	}
	return out
}

// Future reports whether t lies after the validator's current time.
func (v *Validator) Future(t time.Time) bool {
	return t.After(v.now())
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = strings.ToLower(strings.TrimSpace(tag))
	}
	return out
}

// normalizeTime stores dates in UTC at millisecond precision, the resolution MongoDB keeps.
func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Millisecond)
	return &u
}
