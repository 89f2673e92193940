package transport

import (
	"fmt"
	"sync"
)

// ErrSessionNotFound is returned when no session is registered for an account.
var ErrSessionNotFound = fmt.Errorf("transport session not found")

// Registry maps account ids to live transport sessions. It replaces ambient
// global session lookup: the owner registers sessions explicitly and passes
// the registry to whoever needs to send.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Register stores the session under its account id, replacing any previous
// session for the same account.
func (r *Registry) Register(sess *Session) {
	if sess == nil || sess.AccountID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.AccountID] = sess
}

// Get returns the session for an account id.
func (r *Registry) Get(accountID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, accountID)
	}
	return sess, nil
}

// Remove drops the session for an account id. Removing an unknown account is
// a no-op.
func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, accountID)
}

// AccountIDs lists the accounts with a registered session.
func (r *Registry) AccountIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
