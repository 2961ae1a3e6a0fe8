package redisstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
)

// releaseScript deletes the lock key only if it still holds this token,
// guarding against releasing a lock acquired by a different holder after
// this one's TTL expired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Lock is a non-reentrant Redis mutex: SET key value NX PX ttl to acquire,
// a Lua compare-and-delete to release. Used by the Template Cache to
// guarantee at most one in-flight download per template id.
type Lock struct {
	client    *redis.Client
	namespace string
	logger    *common.Logger
	tokens    *tokenStore
}

// NewLock constructs a Redis-backed Lock.
func NewLock(client *redis.Client, namespace string, logger *common.Logger) *Lock {
	return &Lock{client: client, namespace: namespace, logger: logger, tokens: newTokenStore()}
}

func (l *Lock) key(name string) string {
	return fmt.Sprintf("%s:lock:%s", l.namespace, name)
}

// Acquire attempts to set the lock key with NX semantics and a TTL,
// returning true only if this call won the race.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token, err := randomToken()
	if err != nil {
		return false, fmt.Errorf("failed to generate lock token: %w", err)
	}

	ok, err := l.client.SetNX(ctx, l.key(key), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if ok {
		l.tokens.set(key, token)
	}
	return ok, nil
}

// Release deletes the lock key, but only if it still holds this holder's
// token (compare-and-delete via a Lua script).
func (l *Lock) Release(ctx context.Context, key string) error {
	token, ok := l.tokens.get(key)
	if !ok {
		return nil // never acquired by this holder, or already released
	}
	defer l.tokens.delete(key)

	if err := l.client.Eval(ctx, releaseScript, []string{l.key(key)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

var _ interfaces.Lock = (*Lock)(nil)
