// Package lock provides the short-lived per-document mutex guarding the
// draft-to-confirmed transition. The TTL is a deliberate bounded-staleness
// trade-off: if a holder crashes between acquire and release, the lock
// self-heals instead of wedging the document.
package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still holds the caller's token,
// so a holder whose lock expired and was re-acquired by someone else can never
// release the new holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

func (l *Locker) key(docID int64) string {
	return "doc:" + strconv.FormatInt(docID, 10) + ":savelock"
}

// Acquire attempts to take the save-lock with the given token. It never
// blocks or retries; a held lock simply returns false.
func (l *Locker) Acquire(ctx context.Context, docID int64, token string) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key(docID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire save lock: %w", err)
	}
	return acquired, nil
}

// Release frees the lock if and only if it still carries the given token.
// Releasing with a stale token is a no-op.
func (l *Locker) Release(ctx context.Context, docID int64, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(docID)}, token).Err(); err != nil {
		return fmt.Errorf("release save lock: %w", err)
	}
	return nil
}
