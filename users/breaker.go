package users

import (
	"context"
	"time"

	"task-tracker/tasks-service/logging"
	"task-tracker/tasks-service/models"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BreakerDirectory stops calling next after repeated failures and retries it after a cool-down.
type BreakerDirectory struct {
	next Directory
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerDirectory(next Directory, cb *gobreaker.CircuitBreaker) *BreakerDirectory {
	return &BreakerDirectory{next: next, cb: cb}
}

// NewCircuitBreaker trips after more than three consecutive failures.
func NewCircuitBreaker(name string, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
}

func (d *BreakerDirectory) Resolve(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	result, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.Resolve(ctx, ids)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[primitive.ObjectID]models.UserSummary), nil
}
