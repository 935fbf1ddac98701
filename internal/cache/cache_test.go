package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, 60*time.Second), s
}

func TestSeedIfAbsentSingleWinner(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	seeded, err := c.SeedIfAbsent(ctx, 7, "hello")
	if err != nil {
		t.Fatalf("SeedIfAbsent failed: %v", err)
	}
	if !seeded {
		t.Fatal("first seed should win")
	}

	seeded, err = c.SeedIfAbsent(ctx, 7, "other")
	if err != nil {
		t.Fatalf("SeedIfAbsent failed: %v", err)
	}
	if seeded {
		t.Error("second seed must not overwrite")
	}

	content, ok, err := c.GetConfirmed(ctx, 7)
	if err != nil {
		t.Fatalf("GetConfirmed failed: %v", err)
	}
	if !ok || content != "hello" {
		t.Errorf("expected winner's content %q, got %q (ok=%v)", "hello", content, ok)
	}
}

func TestGetConfirmedCold(t *testing.T) {
	c, _ := setupTestCache(t)

	_, ok, err := c.GetConfirmed(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetConfirmed failed: %v", err)
	}
	if ok {
		t.Error("cold document should have no confirmed content")
	}
}

func TestSetConfirmedOverwrites(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	if _, err := c.SeedIfAbsent(ctx, 7, "hello"); err != nil {
		t.Fatalf("SeedIfAbsent failed: %v", err)
	}
	if err := c.SetConfirmed(ctx, 7, "hello!"); err != nil {
		t.Fatalf("SetConfirmed failed: %v", err)
	}

	content, ok, err := c.GetConfirmed(ctx, 7)
	if err != nil {
		t.Fatalf("GetConfirmed failed: %v", err)
	}
	if !ok || content != "hello!" {
		t.Errorf("expected %q, got %q", "hello!", content)
	}
}

func TestDraftExpiresAfterTTL(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	if err := c.SetDraft(ctx, 7, 1, "wip"); err != nil {
		t.Fatalf("SetDraft failed: %v", err)
	}

	content, ok, err := c.GetDraft(ctx, 7, 1)
	if err != nil {
		t.Fatalf("GetDraft failed: %v", err)
	}
	if !ok || content != "wip" {
		t.Fatalf("expected live draft, got %q (ok=%v)", content, ok)
	}

	s.FastForward(61 * time.Second)

	_, ok, err = c.GetDraft(ctx, 7, 1)
	if err != nil {
		t.Fatalf("GetDraft failed: %v", err)
	}
	if ok {
		t.Error("draft older than the TTL must be unreadable")
	}
}

func TestDraftTTLResetOnRewrite(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	if err := c.SetDraft(ctx, 7, 1, "v1"); err != nil {
		t.Fatalf("SetDraft failed: %v", err)
	}
	s.FastForward(45 * time.Second)
	if err := c.SetDraft(ctx, 7, 1, "v2"); err != nil {
		t.Fatalf("SetDraft failed: %v", err)
	}
	s.FastForward(45 * time.Second)

	content, ok, err := c.GetDraft(ctx, 7, 1)
	if err != nil {
		t.Fatalf("GetDraft failed: %v", err)
	}
	if !ok || content != "v2" {
		t.Errorf("rewrite should have reset the TTL, got %q (ok=%v)", content, ok)
	}
}

func TestClearAllDraftsEnumeratesKeys(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	for _, userID := range []int64{1, 2, 3} {
		if err := c.SetDraft(ctx, 7, userID, "wip"); err != nil {
			t.Fatalf("SetDraft failed: %v", err)
		}
	}
	// A draft on another document must survive.
	if err := c.SetDraft(ctx, 9, 1, "other"); err != nil {
		t.Fatalf("SetDraft failed: %v", err)
	}

	if err := c.ClearAllDrafts(ctx, 7); err != nil {
		t.Fatalf("ClearAllDrafts failed: %v", err)
	}

	for _, userID := range []int64{1, 2, 3} {
		if _, ok, err := c.GetDraft(ctx, 7, userID); err != nil || ok {
			t.Errorf("draft for user %d should be gone (ok=%v, err=%v)", userID, ok, err)
		}
	}
	if _, ok, err := c.GetDraft(ctx, 9, 1); err != nil || !ok {
		t.Errorf("draft on doc 9 should be untouched (ok=%v, err=%v)", ok, err)
	}
}

func TestClearAllRemovesEverySlot(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	if _, err := c.SeedIfAbsent(ctx, 7, "hello"); err != nil {
		t.Fatalf("SeedIfAbsent failed: %v", err)
	}
	if err := c.SetDraft(ctx, 7, 1, "wip"); err != nil {
		t.Fatalf("SetDraft failed: %v", err)
	}
	s.Set("doc:7:savelock", "tok")

	if err := c.ClearAll(ctx, 7); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	if _, ok, _ := c.GetConfirmed(ctx, 7); ok {
		t.Error("confirmed content should be gone after teardown")
	}
	if _, ok, _ := c.GetDraft(ctx, 7, 1); ok {
		t.Error("drafts should be gone after teardown")
	}
	if s.Exists("doc:7:savelock") {
		t.Error("save lock should be gone after teardown")
	}
}
