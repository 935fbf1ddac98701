// Package presence tracks which users are currently connected to each
// document's collaboration session. Membership lives in a shared Redis set so
// every server instance observes the same view; an empty set and a missing key
// are equivalent.
package presence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, prefix: "doc:"}
}

func (s *Store) key(docID int64) string {
	return s.prefix + strconv.FormatInt(docID, 10) + ":online"
}

func (s *Store) Add(ctx context.Context, docID, userID int64) error {
	if err := s.client.SAdd(ctx, s.key(docID), userID).Err(); err != nil {
		return fmt.Errorf("add presence: %w", err)
	}
	return nil
}

// Remove drops a user from the document's presence set. Removing a user who
// is not a member is a no-op.
func (s *Store) Remove(ctx context.Context, docID, userID int64) error {
	if err := s.client.SRem(ctx, s.key(docID), userID).Err(); err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	return nil
}

// Members returns the user ids currently online for the document, in no
// particular order.
func (s *Store) Members(ctx context.Context, docID int64) ([]int64, error) {
	raw, err := s.client.SMembers(ctx, s.key(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	members := make([]int64, 0, len(raw))
	for _, value := range raw {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse presence member %q: %w", value, err)
		}
		members = append(members, id)
	}
	return members, nil
}

func (s *Store) IsEmpty(ctx context.Context, docID int64) (bool, error) {
	count, err := s.client.SCard(ctx, s.key(docID)).Result()
	if err != nil {
		return false, fmt.Errorf("count presence: %w", err)
	}
	return count == 0, nil
}
