package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session identifies one open feed connection.
type Session struct {
	ID       string
	ClinicID uint64
	UserID   uint64
	OpenedAt time.Time
}

// Registry tracks the open sessions per clinic.  It holds no snapshot
// state; each session owns its own.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint64]map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint64]map[string]Session)}
}

// Register adds a session and returns it.
func (r *Registry) Register(clinicID, userID uint64) Session {
	s := Session{ID: uuid.NewString(), ClinicID: clinicID, UserID: userID, OpenedAt: time.Now().UTC()}
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.sessions[clinicID]
	if !ok {
		byID = make(map[string]Session)
		r.sessions[clinicID] = byID
	}
	byID[s.ID] = s
	return s
}

// Deregister removes a session.  The clinic entry goes away with its last
// session.
func (r *Registry) Deregister(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.sessions[s.ClinicID]
	if !ok {
		return
	}
	delete(byID, s.ID)
	if len(byID) == 0 {
		delete(r.sessions, s.ClinicID)
	}
}

// Count returns the number of open sessions of a clinic.
func (r *Registry) Count(clinicID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[clinicID])
}

// Total returns the number of open sessions over all clinics.
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, byID := range r.sessions {
		n += len(byID)
	}
	return n
}
