package query

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"task-tracker/tasks-service/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultPage      int64 = 1
	DefaultLimit     int64 = 10
	DefaultSortBy          = FieldCreatedAt
	DefaultSortOrder       = SortDesc

	SortAsc  = "asc"
	SortDesc = "desc"
)

var (
	ErrUnsortableField = errors.New("field is not sortable")
	ErrInvalidOrder    = errors.New("sort order must be asc or desc")
)

var sortable = map[string]bool{
	FieldCreatedAt: true,
	FieldUpdatedAt: true,
	FieldDueDate:   true,
	FieldTitle:     true,
	FieldStatus:    true,
	FieldPriority:  true,
}

// Sortable reports whether tasks can be ordered by field.
func Sortable(field string) bool {
	return sortable[field]
}

// ListOptions are the caller-supplied criteria of a task list request.
// Zero values mean "not applied" for filters and "default" for paging and sorting.
type ListOptions struct {
	Status     models.TaskStatus
	Priority   models.Priority
	AssignedTo *primitive.ObjectID
	Search     string
	Page       int64
	Limit      int64
	SortBy     string
	SortOrder  string
}

func (o ListOptions) withDefaults() ListOptions {
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	if o.Limit < 1 {
		o.Limit = DefaultLimit
	}
	if o.SortBy == "" {
		o.SortBy = DefaultSortBy
	}
	if o.SortOrder == "" {
		o.SortOrder = DefaultSortOrder
	}
	o.SortOrder = strings.ToLower(o.SortOrder)
	return o
}

type Sort struct {
	Field string
	Desc  bool
}

// ListQuery is a fully composed store query for one page of tasks.
type ListQuery struct {
	Filter Expr
	Sort   Sort
	Page   int64
	Skip   int64
	Limit  int64
}

// Build composes explicit filters, the search disjunction and the visibility predicate
// into a single conjunction. The search OR-group and the visibility OR-group stay separate
// children of the AND so neither can replace the other.
func Build(opts ListOptions, visibility Expr) (ListQuery, error) {
	opts = opts.withDefaults()

	if !Sortable(opts.SortBy) {
		return ListQuery{}, fmt.Errorf("%w: %s", ErrUnsortableField, opts.SortBy)
	}
	if opts.SortOrder != SortAsc && opts.SortOrder != SortDesc {
		return ListQuery{}, fmt.Errorf("%w: %s", ErrInvalidOrder, opts.SortOrder)
	}

	return ListQuery{
		Filter: And(Criteria(opts), visibility),
		Sort:   Sort{Field: opts.SortBy, Desc: opts.SortOrder == SortDesc},
		Page:   opts.Page,
		Skip:   skip(opts.Page, opts.Limit),
		Limit:  opts.Limit,
	}, nil
}

// skip saturates at math.MaxInt64 so a huge page yields an empty result instead of wrapping.
func skip(page, limit int64) int64 {
	if page <= 1 || limit <= 0 {
		return 0
	}
	if page-1 > math.MaxInt64/limit {
		return math.MaxInt64
	}
	return (page - 1) * limit
}

// Criteria is the caller-supplied part of the filter, without any visibility restriction.
func Criteria(opts ListOptions) Expr {
	var clauses []Expr
	if opts.Status != "" {
		clauses = append(clauses, Eq(FieldStatus, opts.Status))
	}
	if opts.Priority != "" {
		clauses = append(clauses, Eq(FieldPriority, opts.Priority))
	}
	if opts.AssignedTo != nil {
		clauses = append(clauses, Eq(FieldAssignedTo, *opts.AssignedTo))
	}
	if s := strings.TrimSpace(opts.Search); s != "" {
		clauses = append(clauses, Or(
			Contains(FieldTitle, s),
			Contains(FieldDescription, s),
		))
	}
	return And(clauses...)
}
