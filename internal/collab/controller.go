package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"quill/api/internal/cache"
	"quill/api/internal/lock"
	"quill/api/internal/presence"
	"quill/api/internal/util"
)

// DurableStore is the external collaborator holding the system of record. The
// controller reads a document's content once per cold start and hands chat
// messages off for persistence; it never writes document content itself.
type DurableStore interface {
	GetDocumentContent(ctx context.Context, docID, userID int64) (string, error)
	CheckEditable(ctx context.Context, docID, userID int64) error
	InsertChatMessage(ctx context.Context, docID, userID int64, content string) (int64, error)
}

// Controller orchestrates the collaboration session state machine. Each
// document is either cold (no cached state, empty presence) or active; the
// transition back to cold happens only when the last participant leaves.
//
// Every inbound message is handled by its own worker goroutine. Cross-instance
// state lives in Redis and relies on its atomic primitives; the registry,
// cursor table and hub are the only process-local mutable state.
type Controller struct {
	presence *presence.Store
	cache    *cache.Cache
	locks    *lock.Locker
	registry *Registry
	cursors  *CursorTable
	hub      *Hub
	docs     DurableStore
}

func NewController(p *presence.Store, c *cache.Cache, l *lock.Locker, docs DurableStore) *Controller {
	return &Controller{
		presence: p,
		cache:    c,
		locks:    l,
		registry: NewRegistry(),
		cursors:  NewCursorTable(),
		hub:      NewHub(),
		docs:     docs,
	}
}

// Join brings a session into a document's collaboration session: it seeds the
// confirmed slot from durable content on cold start, records presence,
// registers the session and broadcasts the updated participant list. The
// confirmed content itself is not pushed; clients fetch it through the cache
// read path.
func (c *Controller) Join(ctx context.Context, sessionID string, userID, docID int64, sender Sender) error {
	// A connection holds one document at a time; joining another document
	// implicitly leaves the previous one first.
	if binding, ok := c.registry.Lookup(sessionID); ok {
		if binding.DocumentID == docID {
			return nil
		}
		if err := c.Leave(ctx, sessionID); err != nil {
			return err
		}
	}

	if _, warm, err := c.cache.GetConfirmed(ctx, docID); err != nil {
		return err
	} else if !warm {
		content, err := c.docs.GetDocumentContent(ctx, docID, userID)
		if err != nil {
			return fmt.Errorf("fetch durable content: %w", err)
		}
		// Two joins racing to seed resolve through SETNX; the loser's
		// content is discarded.
		if _, err := c.cache.SeedIfAbsent(ctx, docID, content); err != nil {
			return err
		}
	}

	if err := c.presence.Add(ctx, docID, userID); err != nil {
		return err
	}
	c.registry.Register(sessionID, userID, docID)
	c.hub.Subscribe(docID, sessionID, userID, sender)

	members, err := c.presence.Members(ctx, docID)
	if err != nil {
		return err
	}
	c.hub.Broadcast(docID, newEvent(KindJoin, docID, actor(userID), PresencePayload{Users: members}))
	return nil
}

// DraftEdit writes the sender's draft slot and rebroadcasts the content
// verbatim to every subscriber, the sender included. Draft streams are
// last-write-wins per user; no merging is attempted.
func (c *Controller) DraftEdit(ctx context.Context, userID, docID int64, content string) error {
	if err := c.cache.SetDraft(ctx, docID, userID, content); err != nil {
		return err
	}
	c.hub.Broadcast(docID, newEvent(KindDraftEdit, docID, actor(userID), ContentPayload{Content: content}))
	return nil
}

// Save serializes the draft-to-confirmed transition through the save-lock.
// A held lock yields a private rejection to the requester only; nothing is
// broadcast. On success the lock is released in a deferred path so a failure
// while broadcasting can never leave the document wedged for the TTL.
func (c *Controller) Save(ctx context.Context, sessionID string, userID, docID int64, content string) error {
	if err := c.docs.CheckEditable(ctx, docID, userID); err != nil {
		// Unauthorized saves are dropped without a reply.
		log.Printf("save dropped: doc=%d user=%d: %v", docID, userID, err)
		return nil
	}

	token := util.NewID("lock")
	acquired, err := c.locks.Acquire(ctx, docID, token)
	if err != nil {
		return err
	}
	if !acquired {
		c.hub.Send(sessionID, newEvent(KindSaveRejected, docID, actor(userID), RejectionPayload{Reason: "save conflict, retry"}))
		return nil
	}
	defer func() {
		if err := c.locks.Release(ctx, docID, token); err != nil {
			log.Printf("release save lock: doc=%d: %v", docID, err)
		}
	}()

	if err := c.cache.SetConfirmed(ctx, docID, content); err != nil {
		return err
	}
	if err := c.cache.ClearDraft(ctx, docID, userID); err != nil {
		return err
	}
	c.hub.Broadcast(docID, newEvent(KindSaveConfirmed, docID, actor(userID), ContentPayload{Content: content}))
	return nil
}

// Leave removes a session from its document, whether triggered by an explicit
// leave message or by the connection dropping. When the last participant
// leaves, every cached slot for the document is torn down and the document
// reverts to cold.
func (c *Controller) Leave(ctx context.Context, sessionID string) error {
	binding, ok := c.registry.Unregister(sessionID)
	if !ok {
		// Already gone: a disconnect racing a graceful leave.
		return nil
	}
	docID, userID := binding.DocumentID, binding.UserID

	c.hub.Unsubscribe(sessionID)
	c.cursors.Remove(docID, userID)

	if err := c.presence.Remove(ctx, docID, userID); err != nil {
		return err
	}
	if err := c.cache.ClearDraft(ctx, docID, userID); err != nil {
		return err
	}

	members, err := c.presence.Members(ctx, docID)
	if err != nil {
		return err
	}
	c.hub.Broadcast(docID, newEvent(KindLeave, docID, actor(userID), PresencePayload{Users: members}))

	if len(members) == 0 {
		c.cursors.Drop(docID)
		if err := c.cache.ClearAll(ctx, docID); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect handles an abrupt connection loss. Same cleanup as Leave; a
// session that already left is a no-op.
func (c *Controller) Disconnect(ctx context.Context, sessionID string) error {
	return c.Leave(ctx, sessionID)
}

// Cursor records and rebroadcasts a cursor position. Positions never touch
// the shared store.
func (c *Controller) Cursor(docID, userID int64, position json.RawMessage) {
	c.cursors.Set(docID, userID, position)
	c.hub.Broadcast(docID, newEvent(KindCursor, docID, actor(userID), CursorPayload{Position: position}))
}

// Chat persists the message through the durable collaborator, then broadcasts
// it with its assigned id.
func (c *Controller) Chat(ctx context.Context, docID, userID int64, text string) error {
	messageID, err := c.docs.InsertChatMessage(ctx, docID, userID, text)
	if err != nil {
		return fmt.Errorf("persist chat message: %w", err)
	}
	c.hub.Broadcast(docID, newEvent(KindChat, docID, actor(userID), ChatPayload{MessageID: messageID, Content: text}))
	return nil
}

// OnlineUsers answers the presence query privately to the requesting session.
func (c *Controller) OnlineUsers(ctx context.Context, sessionID string, docID int64) error {
	members, err := c.presence.Members(ctx, docID)
	if err != nil {
		return err
	}
	c.hub.Send(sessionID, newEvent(KindOnlineUsers, docID, nil, PresencePayload{Users: members}))
	return nil
}

// NotifyUser delivers a cross-cutting notification to all of a user's live
// sessions. Exposed to the rest of the backend for events unrelated to a
// document session (friend requests, share invites).
func (c *Controller) NotifyUser(userID int64, kind string, data json.RawMessage) {
	c.hub.SendToUser(userID, newEvent(KindNotification, 0, nil, NotificationPayload{Kind: kind, Data: data}))
}
