package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"omnitoken/clinic-service/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const versionKey = "clinic:state:version"

// Fetcher loads the role-scoped state from the remote store.
type Fetcher interface {
	FetchStateForUser(ctx context.Context, user models.User) (models.Snapshot, error)
}

// StateCache is a read-through Redis cache in front of the remote store's
// scoped fetch. Entries are keyed by scope and a shared version number;
// Invalidate bumps the version so every cached scope goes stale at once.
// Password hashes are never cached.
type StateCache struct {
	redis  *redis.Client
	remote Fetcher
	ttl    time.Duration
	logger zerolog.Logger
}

func NewStateCache(client *redis.Client, remote Fetcher, ttl time.Duration, logger zerolog.Logger) *StateCache {
	return &StateCache{
		redis:  client,
		remote: remote,
		ttl:    ttl,
		logger: logger.With().Str("component", "state_cache").Logger(),
	}
}

func (c *StateCache) FetchStateForUser(ctx context.Context, user models.User) (models.Snapshot, error) {
	key, ok := c.key(ctx, user)

	var snap models.Snapshot
	if ok && c.readCache(ctx, key, &snap) {
		return snap, nil
	}

	snap, err := c.remote.FetchStateForUser(ctx, user)
	if err != nil {
		return models.Snapshot{}, err
	}
	for i := range snap.Users {
		snap.Users[i].PasswordHash = ""
	}
	if ok {
		c.writeCache(ctx, key, snap)
	}
	return snap, nil
}

// Invalidate expires every cached scope.
func (c *StateCache) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("invalidate state cache: %w", err)
	}
	return nil
}

func (c *StateCache) key(ctx context.Context, user models.User) (string, bool) {
	if c.redis == nil || c.ttl <= 0 {
		return "", false
	}
	version, err := c.redis.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Msg("read cache version failed")
		return "", false
	}
	return fmt.Sprintf("clinic:state:v%d:%s", version, ScopeKey(user)), true
}

// ScopeKey names the visibility scope of a user; users with the same
// scope see the same state.
func ScopeKey(user models.User) string {
	switch {
	case user.Role == models.RoleCentralAdmin:
		return "central"
	case models.IsClinicStaff(user.Role):
		return "clinic:" + user.ClinicID
	case user.Role == models.RoleAdvertiser:
		return "advertiser:" + user.AdvertiserID
	default:
		return "none"
	}
}

func (c *StateCache) readCache(ctx context.Context, key string, out any) bool {
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *StateCache) writeCache(ctx context.Context, key string, val any) {
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("write cache failed")
	}
}
