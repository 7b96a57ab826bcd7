package network

import (
	"fmt"

	"github.com/arloliu/go-fujibus/fujibus"
)

// SessionTable is a fixed-capacity registry of sessions keyed by the
// device-assigned handle. It has no internal locking; it is owned by a
// single Client.
type SessionTable struct {
	slots [MaxSessions]Session
}

// Allocate claims a free slot and moves it to StateOpening. It returns
// StatusNoHandles when every slot is in use.
func (t *SessionTable) Allocate() (*Session, error) {
	for i := range t.slots {
		if !t.slots[i].Active() {
			t.slots[i] = Session{State: StateOpening}
			return &t.slots[i], nil
		}
	}

	return nil, fujibus.StatusNoHandles
}

// Find returns the session for h, or StatusNotFound.
func (t *SessionTable) Find(h fujibus.Handle) (*Session, error) {
	if h != fujibus.InvalidHandle {
		for i := range t.slots {
			s := &t.slots[i]
			if s.Active() && s.State != StateOpening && s.Handle == h {
				return s, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: handle %d", fujibus.StatusNotFound, h)
}

// Free releases the slot holding h. Freeing an unknown handle is a no-op.
func (t *SessionTable) Free(h fujibus.Handle) {
	if h == fujibus.InvalidHandle {
		return
	}
	for i := range t.slots {
		if t.slots[i].Active() && t.slots[i].Handle == h {
			t.slots[i] = Session{}
		}
	}
}

// release frees a specific slot, used to roll back a failed open.
func (t *SessionTable) release(s *Session) {
	*s = Session{}
}

// Len returns the number of slots in use.
func (t *SessionTable) Len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].Active() {
			n++
		}
	}

	return n
}

// Full reports whether no slot is free.
func (t *SessionTable) Full() bool {
	return t.Len() == MaxSessions
}

// Sessions returns a snapshot of the sessions in use.
func (t *SessionTable) Sessions() []Session {
	out := make([]Session, 0, MaxSessions)
	for i := range t.slots {
		if t.slots[i].Active() {
			out = append(out, t.slots[i])
		}
	}

	return out
}
