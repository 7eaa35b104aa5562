package vault

import "sync"

// Session is the process-lifetime set of item IDs a caller has explicitly
// unlocked. It is deliberately never persisted: restarting the broker
// forces re-consent, bounding the blast radius of a long-lived session.
//
// There is no re-lock: an unlocked item stays unlocked until the process
// exits. Insertion is idempotent and commutative, so concurrent unlocks
// need nothing beyond the mutex.
type Session struct {
	mu       sync.Mutex
	unlocked map[string]struct{}
}

// NewSession creates an empty unlock session. Each broker owns its own
// session; nothing here is package-global.
func NewSession() *Session {
	return &Session{unlocked: make(map[string]struct{})}
}

// Unlock marks the item as unlocked for the rest of the process lifetime.
// Idempotent.
func (s *Session) Unlock(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked[itemID] = struct{}{}
}

// IsUnlocked reports whether the item has been unlocked this session.
func (s *Session) IsUnlocked(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unlocked[itemID]
	return ok
}

// Count returns how many items are unlocked this session, for
// user-facing confirmation messages.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unlocked)
}
