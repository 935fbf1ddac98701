package collab

import "sync"

// Sender delivers events to one subscriber's connection. The websocket client
// implements it with a buffered channel; tests substitute an in-memory fake.
// Deliveries for a given subscriber happen in the order they were issued.
type Sender interface {
	Send(ev Event)
}

type subscriber struct {
	userID int64
	docID  int64
	sender Sender
}

// Hub fans events out to the sessions subscribed to each document. It is
// best-effort pub/sub: per-subscriber order follows issue order, but there is
// no global order across subscribers.
type Hub struct {
	mu       sync.RWMutex
	docs     map[int64]map[string]*subscriber
	sessions map[string]*subscriber
}

func NewHub() *Hub {
	return &Hub{
		docs:     make(map[int64]map[string]*subscriber),
		sessions: make(map[string]*subscriber),
	}
}

func (h *Hub) Subscribe(docID int64, sessionID string, userID int64, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &subscriber{userID: userID, docID: docID, sender: sender}
	subs, ok := h.docs[docID]
	if !ok {
		subs = make(map[string]*subscriber)
		h.docs[docID] = subs
	}
	subs[sessionID] = sub
	h.sessions[sessionID] = sub
}

func (h *Hub) Unsubscribe(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)
	if subs, ok := h.docs[sub.docID]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(h.docs, sub.docID)
		}
	}
}

// Broadcast delivers the event to every session subscribed to the document,
// including the one that triggered it.
func (h *Hub) Broadcast(docID int64, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.docs[docID] {
		sub.sender.Send(ev)
	}
}

// Send delivers the event to a single session only.
func (h *Hub) Send(sessionID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sub, ok := h.sessions[sessionID]; ok {
		sub.sender.Send(ev)
	}
}

// SendToUser delivers the event privately to every live session of a user,
// regardless of which documents those sessions joined.
func (h *Hub) SendToUser(userID int64, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.sessions {
		if sub.userID == userID {
			sub.sender.Send(ev)
		}
	}
}
