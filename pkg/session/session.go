package session

import (
	"sync/atomic"
)

// Session identifies the server and account that API calls are made against
type Session struct {
	BaseURL     string
	AccessToken string
	UserID      string
}

// Holder owns the active session. The three fields are always replaced
// together, so readers never see an address paired with another server's token.
type Holder struct {
	current atomic.Pointer[Session]
}

// NewHolder creates an empty holder
func NewHolder() *Holder {
	return &Holder{}
}

// Set replaces the active session
func (h *Holder) Set(s Session) {
	h.current.Store(&s)
}

// Current returns the active session, if any
func (h *Holder) Current() (Session, bool) {
	s := h.current.Load()
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

// Clear drops the active session
func (h *Holder) Clear() {
	h.current.Store(nil)
}
