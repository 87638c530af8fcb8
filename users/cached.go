package users

import (
	"context"
	"encoding/json"

	"task-tracker/tasks-service/cache"
	"task-tracker/tasks-service/logging"
	"task-tracker/tasks-service/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CachedDirectory serves summaries from Redis and falls back to next on a miss.
// A Redis failure never fails a lookup; it only bypasses the cache.
type CachedDirectory struct {
	next  Directory
	cache *cache.Cache
}

func NewCachedDirectory(next Directory, c *cache.Cache) *CachedDirectory {
	return &CachedDirectory{next: next, cache: c}
}

func (d *CachedDirectory) Resolve(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	ids = Unique(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.Hex()
	}

	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	cached, err := d.cache.GetMany(ctx, keys)
	if err != nil {
		logging.Logger.Warnf("Event ID: USER_CACHE_READ_FAILED, Description: Bypassing user cache: %v", err)
		cached = map[string][]byte{}
	}

	var missing []primitive.ObjectID
	for _, id := range ids {
		raw, ok := cached[id.Hex()]
		if !ok {
			missing = append(missing, id)
			continue
		}
		var u models.UserSummary
		if err := json.Unmarshal(raw, &u); err != nil {
			missing = append(missing, id)
			continue
		}
		out[id] = u
	}
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := d.next.Resolve(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range fresh {
		out[id] = u
		if err := d.cache.Set(ctx, id.Hex(), u); err != nil {
			logging.Logger.Warnf("Event ID: USER_CACHE_WRITE_FAILED, Description: Could not cache user %s: %v", id.Hex(), err)
		}
	}
	return out, nil
}
