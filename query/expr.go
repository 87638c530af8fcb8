// Package query composes task list filters into a predicate tree that renders to a
// MongoDB filter document and evaluates against in-memory tasks with identical semantics.
package query

import (
	"regexp"
	"strings"
	"time"

	"task-tracker/tasks-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task document field names.
const (
	FieldID          = "_id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldAssignedTo  = "assignedTo"
	FieldCreatedBy   = "createdBy"
	FieldDueDate     = "dueDate"
	FieldCreatedAt   = "createdAt"
	FieldUpdatedAt   = "updatedAt"
)

// Expr is a node of the predicate tree.
type Expr interface {
	// Filter renders the node as a MongoDB filter document.
	Filter() bson.D
	// Match evaluates the node against a task.
	Match(t *models.Task) bool
}

type all struct{}

// All matches every task. It renders to an empty filter and disappears inside And.
func All() Expr { return all{} }

func (all) Filter() bson.D          { return bson.D{} }
func (all) Match(*models.Task) bool { return true }

// IsAll reports whether e places no restriction at all.
func IsAll(e Expr) bool {
	switch v := e.(type) {
	case nil, all:
		return true
	case andExpr:
		return len(v) == 0
	}
	return false
}

type andExpr []Expr

// And is the conjunction of its non-trivial children.
func And(children ...Expr) Expr {
	var kept andExpr
	for _, c := range children {
		if IsAll(c) {
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return all{}
	case 1:
		return kept[0]
	}
	return kept
}

func (a andExpr) Filter() bson.D {
	clauses := make(bson.A, 0, len(a))
	for _, c := range a {
		clauses = append(clauses, c.Filter())
	}
	return bson.D{{Key: "$and", Value: clauses}}
}

func (a andExpr) Match(t *models.Task) bool {
	for _, c := range a {
		if !c.Match(t) {
			return false
		}
	}
	return true
}

type orExpr []Expr

// Or is the disjunction of its children. An Or with no children matches nothing.
func Or(children ...Expr) Expr {
	return orExpr(children)
}

func (o orExpr) Filter() bson.D {
	clauses := make(bson.A, 0, len(o))
	for _, c := range o {
		clauses = append(clauses, c.Filter())
	}
	return bson.D{{Key: "$or", Value: clauses}}
}

func (o orExpr) Match(t *models.Task) bool {
	for _, c := range o {
		if c.Match(t) {
			return true
		}
	}
	return false
}

type eqExpr struct {
	field string
	value any
}

func Eq(field string, value any) Expr {
	return eqExpr{field: field, value: normalize(value)}
}

func (e eqExpr) Filter() bson.D {
	return bson.D{{Key: e.field, Value: e.value}}
}

func (e eqExpr) Match(t *models.Task) bool {
	v, ok := fieldValue(t, e.field)
	return ok && v == e.value
}

type neExpr struct {
	field string
	value any
}

func Ne(field string, value any) Expr {
	return neExpr{field: field, value: normalize(value)}
}

func (e neExpr) Filter() bson.D {
	return bson.D{{Key: e.field, Value: bson.D{{Key: "$ne", Value: e.value}}}}
}

func (e neExpr) Match(t *models.Task) bool {
	v, ok := fieldValue(t, e.field)
	return !ok || v != e.value
}

type containsExpr struct {
	field  string
	substr string
}

// Contains matches a case-insensitive literal substring of a string field.
// Regex metacharacters in substr are escaped, so the search text is never a pattern.
func Contains(field, substr string) Expr {
	return containsExpr{field: field, substr: substr}
}

func (e containsExpr) Filter() bson.D {
	return bson.D{{Key: e.field, Value: primitive.Regex{Pattern: regexp.QuoteMeta(e.substr), Options: "i"}}}
}

func (e containsExpr) Match(t *models.Task) bool {
	v, ok := fieldValue(t, e.field)
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && strings.Contains(strings.ToLower(s), strings.ToLower(e.substr))
}

type beforeExpr struct {
	field string
	at    time.Time
}

// Before matches tasks whose time field is set and strictly earlier than at.
func Before(field string, at time.Time) Expr {
	return beforeExpr{field: field, at: at}
}

func (e beforeExpr) Filter() bson.D {
	return bson.D{{Key: e.field, Value: bson.D{{Key: "$lt", Value: e.at}}}}
}

func (e beforeExpr) Match(t *models.Task) bool {
	v, ok := fieldValue(t, e.field)
	if !ok {
		return false
	}
	ts, ok := v.(time.Time)
	return ok && ts.Before(e.at)
}

func normalize(v any) any {
	switch x := v.(type) {
	case models.TaskStatus:
		return string(x)
	case models.Priority:
		return string(x)
	case *primitive.ObjectID:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

// fieldValue returns the comparable value of a document field; ok is false when the field is unset.
func fieldValue(t *models.Task, field string) (any, bool) {
	switch field {
	case FieldID:
		return t.ID, true
	case FieldTitle:
		return t.Title, true
	case FieldDescription:
		return t.Description, true
	case FieldStatus:
		return string(t.Status), true
	case FieldPriority:
		return string(t.Priority), true
	case FieldAssignedTo:
		return t.AssignedTo, true
	case FieldCreatedBy:
		return t.CreatedBy, true
	case FieldDueDate:
		if t.DueDate == nil {
			return nil, false
		}
		return *t.DueDate, true
	case FieldCreatedAt:
		return t.CreatedAt, true
	case FieldUpdatedAt:
		return t.UpdatedAt, true
	}
	return nil, false
}

// Value exposes a task field the way predicates see it, for grouping in memory.
func Value(t *models.Task, field string) (any, bool) {
	return fieldValue(t, field)
}
