// Package cache holds the layered collaboration state for a document: one
// shared "confirmed" slot plus one ephemeral draft slot per user. The cache is
// never the system of record; the durable store is written only by the
// explicit commit action.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client   *redis.Client
	draftTTL time.Duration
}

func New(client *redis.Client, draftTTL time.Duration) *Cache {
	return &Cache{client: client, draftTTL: draftTTL}
}

func (c *Cache) confirmedKey(docID int64) string {
	return "doc:" + strconv.FormatInt(docID, 10) + ":content"
}

func (c *Cache) draftKey(docID, userID int64) string {
	return "doc:" + strconv.FormatInt(docID, 10) + ":draft:" + strconv.FormatInt(userID, 10)
}

func (c *Cache) draftPattern(docID int64) string {
	return "doc:" + strconv.FormatInt(docID, 10) + ":draft:*"
}

// lockKey mirrors lock.Locker's key layout so that full teardown can clear a
// leftover save-lock together with the content it guarded.
func (c *Cache) lockKey(docID int64) string {
	return "doc:" + strconv.FormatInt(docID, 10) + ":savelock"
}

// SeedIfAbsent writes the confirmed slot only when no value exists yet.
// Concurrent seeders race through Redis SETNX, so exactly one wins and the
// others observe the winner's value afterwards.
func (c *Cache) SeedIfAbsent(ctx context.Context, docID int64, content string) (bool, error) {
	seeded, err := c.client.SetNX(ctx, c.confirmedKey(docID), content, 0).Result()
	if err != nil {
		return false, fmt.Errorf("seed confirmed content: %w", err)
	}
	return seeded, nil
}

// GetConfirmed returns the cached confirmed content. The second return value
// is false when the document is cold.
func (c *Cache) GetConfirmed(ctx context.Context, docID int64) (string, bool, error) {
	content, err := c.client.Get(ctx, c.confirmedKey(docID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read confirmed content: %w", err)
	}
	return content, true, nil
}

// SetConfirmed overwrites the confirmed slot unconditionally. Callers must
// hold the document's save-lock.
func (c *Cache) SetConfirmed(ctx context.Context, docID int64, content string) error {
	if err := c.client.Set(ctx, c.confirmedKey(docID), content, 0).Err(); err != nil {
		return fmt.Errorf("set confirmed content: %w", err)
	}
	return nil
}

// SetDraft stores a user's uncommitted buffer. Every write resets the draft
// TTL; a draft untouched for the full window is considered stale and expires.
func (c *Cache) SetDraft(ctx context.Context, docID, userID int64, content string) error {
	if err := c.client.Set(ctx, c.draftKey(docID, userID), content, c.draftTTL).Err(); err != nil {
		return fmt.Errorf("set draft: %w", err)
	}
	return nil
}

func (c *Cache) GetDraft(ctx context.Context, docID, userID int64) (string, bool, error) {
	content, err := c.client.Get(ctx, c.draftKey(docID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read draft: %w", err)
	}
	return content, true, nil
}

func (c *Cache) ClearDraft(ctx context.Context, docID, userID int64) error {
	if err := c.client.Del(ctx, c.draftKey(docID, userID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// ClearAllDrafts removes every draft slot for the document. It enumerates
// draft keys by pattern so callers need not know which users wrote drafts.
func (c *Cache) ClearAllDrafts(ctx context.Context, docID int64) error {
	iter := c.client.Scan(ctx, 0, c.draftPattern(docID), 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan drafts: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear drafts: %w", err)
	}
	return nil
}

// ClearAll tears down every cached slot for the document: confirmed content,
// the save-lock, and all drafts. Called only when presence goes empty.
func (c *Cache) ClearAll(ctx context.Context, docID int64) error {
	if err := c.client.Del(ctx, c.confirmedKey(docID), c.lockKey(docID)).Err(); err != nil {
		return fmt.Errorf("clear document cache: %w", err)
	}
	return c.ClearAllDrafts(ctx, docID)
}
