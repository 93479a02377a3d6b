package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	profileKeyFmt    = "profile:%d"
	renderLockKeyFmt = "render:lock:%d:%d"
	profileTTL       = 10 * time.Minute
)

// releaseScript deletes a lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client wraps an optional Redis connection. A nil *Client, or one whose
// connection failed at startup, turns every method into a no-op so the
// service keeps working without Redis.
type Client struct {
	rdb *redis.Client
}

// Connect pings Redis with a 5s timeout. On failure the returned client is
// disabled and the error is returned for logging.
func Connect(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return &Client{}, err
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// IsHealthy returns true if the Redis connection is working
func (c *Client) IsHealthy(ctx context.Context) bool {
	if !c.Enabled() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err() == nil
}

// GetCached returns cached data for a key
func (c *Client) GetCached(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetCached stores data with a TTL
func (c *Client) SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	c.rdb.Set(ctx, key, data, ttl)
}

// InvalidateKeys removes specific cache keys
func (c *Client) InvalidateKeys(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	c.rdb.Del(ctx, keys...)
}

func ProfileKey(userID int64) string {
	return fmt.Sprintf(profileKeyFmt, userID)
}

// GetCachedProfile returns the JSON-encoded business profile of a user
func (c *Client) GetCachedProfile(ctx context.Context, userID int64) ([]byte, bool) {
	return c.GetCached(ctx, ProfileKey(userID))
}

func (c *Client) CacheProfile(ctx context.Context, userID int64, data []byte) {
	c.SetCached(ctx, ProfileKey(userID), data, profileTTL)
}

// Lock is a held render lock. Release is safe to call on a nil or no-op lock.
type Lock struct {
	c     *Client
	key   string
	token string
}

func (l *Lock) Release(ctx context.Context) {
	if l == nil || !l.c.Enabled() {
		return
	}
	releaseScript.Run(ctx, l.c.rdb, []string{l.key}, l.token)
}

// TryRenderLock tries to take the render lock for a document revision.
// Without Redis every caller gets a no-op lock, since duplicate renders are
// harmless. ok is false only when another holder has the lock.
func (c *Client) TryRenderLock(ctx context.Context, docID int64, revision int, ttl time.Duration) (*Lock, bool) {
	if !c.Enabled() {
		return &Lock{}, true
	}

	key := fmt.Sprintf(renderLockKeyFmt, docID, revision)
	token := newToken()
	acquired, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		// Redis trouble never blocks rendering
		return &Lock{}, true
	}
	if !acquired {
		return nil, false
	}
	return &Lock{c: c, key: key, token: token}, true
}

// WaitRenderLock polls until the lock for a document revision is released or ctx ends
func (c *Client) WaitRenderLock(ctx context.Context, docID int64, revision int) {
	if !c.Enabled() {
		return
	}
	key := fmt.Sprintf(renderLockKeyFmt, docID, revision)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, err := c.rdb.Exists(ctx, key).Result()
		if err != nil || n == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
