package query

import (
	"bytes"
	"time"

	"task-tracker/tasks-service/models"

	"go.mongodb.org/mongo-driver/bson"
)

// Document renders the sort as a MongoDB sort document with _id as tie-breaker.
func (s Sort) Document() bson.D {
	dir := 1
	if s.Desc {
		dir = -1
	}
	return bson.D{{Key: s.Field, Value: dir}, {Key: FieldID, Value: dir}}
}

// Less orders two tasks the way Document orders them in MongoDB: strings compare
// bytewise and a missing time sorts before any set time.
func (s Sort) Less(a, b *models.Task) bool {
	c := compareField(a, b, s.Field)
	if c == 0 {
		c = bytes.Compare(a.ID[:], b.ID[:])
	}
	if s.Desc {
		return c > 0
	}
	return c < 0
}

func compareField(a, b *models.Task, field string) int {
	av, aok := fieldValue(a, field)
	bv, bok := fieldValue(b, field)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}

	switch x := av.(type) {
	case string:
		y := bv.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case time.Time:
		return x.Compare(bv.(time.Time))
	}
	return 0
}
