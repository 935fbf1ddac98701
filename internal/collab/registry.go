package collab

import "sync"

// Binding ties a transport session to the user and document it joined.
type Binding struct {
	UserID     int64
	DocumentID int64
}

// Registry maps session ids to their binding. It is process-local state: its
// lifecycle follows the transport connection, not the document, and it exists
// only so disconnect handlers know what to evict. Disconnect callbacks and
// message workers run concurrently, hence the mutex.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Binding
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Binding)}
}

func (r *Registry) Register(sessionID string, userID, docID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = Binding{UserID: userID, DocumentID: docID}
}

// Unregister removes the session and returns its binding. A second call for
// the same session reports absent, which makes a disconnect racing a graceful
// leave idempotent.
func (r *Registry) Unregister(sessionID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	binding, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	return binding, ok
}

func (r *Registry) Lookup(sessionID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	binding, ok := r.sessions[sessionID]
	return binding, ok
}
