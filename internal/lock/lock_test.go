package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, 5*time.Second), s
}

func TestAcquireIsExclusive(t *testing.T) {
	l, _ := setupTestLocker(t)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, 9, "token-a")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	ok, err = l.Acquire(ctx, 9, "token-b")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if ok {
		t.Error("second acquire must fail while the lock is held")
	}
}

func TestReleaseThenReacquire(t *testing.T) {
	l, _ := setupTestLocker(t)
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, 9, "token-a"); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Release(ctx, 9, "token-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	ok, err := l.Acquire(ctx, 9, "token-b")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Error("acquire after release should succeed")
	}
}

func TestReleaseWithWrongTokenIsNoop(t *testing.T) {
	l, s := setupTestLocker(t)
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, 9, "token-a"); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Release(ctx, 9, "token-b"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if !s.Exists("doc:9:savelock") {
		t.Error("release with a foreign token must not remove the lock")
	}
}

func TestLockExpiresAfterTTL(t *testing.T) {
	l, s := setupTestLocker(t)
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, 9, "token-a"); !ok {
		t.Fatal("acquire failed")
	}

	s.FastForward(6 * time.Second)

	ok, err := l.Acquire(ctx, 9, "token-b")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Error("lock should self-heal after its TTL")
	}
}

func TestStaleReleaseAfterReacquire(t *testing.T) {
	l, s := setupTestLocker(t)
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, 9, "token-a"); !ok {
		t.Fatal("acquire failed")
	}
	s.FastForward(6 * time.Second)
	if ok, _ := l.Acquire(ctx, 9, "token-b"); !ok {
		t.Fatal("reacquire after expiry failed")
	}

	// The original holder comes back late; its release must not free the
	// lock now owned by token-b.
	if err := l.Release(ctx, 9, "token-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if got, _ := s.Get("doc:9:savelock"); got != "token-b" {
		t.Errorf("lock value = %q, want token-b", got)
	}
}
