package collab

import "testing"

type recordingSender struct {
	events []Event
}

func (s *recordingSender) Send(ev Event) {
	s.events = append(s.events, ev)
}

func (s *recordingSender) kinds() []Kind {
	kinds := make([]Kind, 0, len(s.events))
	for _, ev := range s.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestBroadcastReachesAllSubscribersIncludingSender(t *testing.T) {
	h := NewHub()
	a := &recordingSender{}
	b := &recordingSender{}
	h.Subscribe(7, "sess-a", 1, a)
	h.Subscribe(7, "sess-b", 2, b)

	h.Broadcast(7, newEvent(KindDraftEdit, 7, actor(1), ContentPayload{Content: "x"}))

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("broadcast should reach both sessions, got a=%d b=%d", len(a.events), len(b.events))
	}
}

func TestBroadcastScopedToDocument(t *testing.T) {
	h := NewHub()
	a := &recordingSender{}
	b := &recordingSender{}
	h.Subscribe(7, "sess-a", 1, a)
	h.Subscribe(9, "sess-b", 2, b)

	h.Broadcast(7, newEvent(KindChat, 7, actor(1), ChatPayload{MessageID: 1, Content: "hi"}))

	if len(b.events) != 0 {
		t.Errorf("doc 9 subscriber must not receive doc 7 events, got %v", b.kinds())
	}
}

func TestSendIsPrivate(t *testing.T) {
	h := NewHub()
	a := &recordingSender{}
	b := &recordingSender{}
	h.Subscribe(7, "sess-a", 1, a)
	h.Subscribe(7, "sess-b", 2, b)

	h.Send("sess-b", newEvent(KindSaveRejected, 7, actor(2), RejectionPayload{Reason: "save conflict, retry"}))

	if len(a.events) != 0 {
		t.Errorf("private send leaked to another session: %v", a.kinds())
	}
	if len(b.events) != 1 {
		t.Fatalf("expected one private event, got %d", len(b.events))
	}
}

func TestSendToUserReachesEverySessionOfThatUser(t *testing.T) {
	h := NewHub()
	tab1 := &recordingSender{}
	tab2 := &recordingSender{}
	other := &recordingSender{}
	h.Subscribe(7, "sess-1", 1, tab1)
	h.Subscribe(9, "sess-2", 1, tab2)
	h.Subscribe(7, "sess-3", 2, other)

	h.SendToUser(1, newEvent(KindNotification, 0, nil, NotificationPayload{Kind: "friend-request"}))

	if len(tab1.events) != 1 || len(tab2.events) != 1 {
		t.Errorf("notification should reach both of user 1's sessions, got %d and %d", len(tab1.events), len(tab2.events))
	}
	if len(other.events) != 0 {
		t.Errorf("notification leaked to user 2: %v", other.kinds())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	a := &recordingSender{}
	h.Subscribe(7, "sess-a", 1, a)
	h.Unsubscribe("sess-a")

	h.Broadcast(7, newEvent(KindCursor, 7, actor(2), CursorPayload{}))
	h.Send("sess-a", newEvent(KindCursor, 7, actor(2), CursorPayload{}))

	if len(a.events) != 0 {
		t.Errorf("unsubscribed session still received events: %v", a.kinds())
	}
}
