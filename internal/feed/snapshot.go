package feed

import "github.com/iliyamo/clinic-queue-booking/internal/model"

// Snapshot remembers the last status seen for every booking of one feed
// session.  It is owned by the session goroutine and is not safe for
// concurrent use.
type Snapshot struct {
	statuses map[uint64]model.BookingStatus
	// announceNew makes a first sighting in invited count as a call-out.
	announceNew bool
}

func NewSnapshot(announceNew bool) *Snapshot {
	return &Snapshot{statuses: make(map[uint64]model.BookingStatus), announceNew: announceNew}
}

// Seed records the statuses of the initial list.
func (s *Snapshot) Seed(list []model.Booking) {
	for _, b := range list {
		s.statuses[b.ID] = b.Status
	}
}

// Observe stores the current status of a booking and reports whether the
// booking has just entered invited.  The stored status is replaced on
// every call, so re-reading the same invited status never reports twice.
func (s *Snapshot) Observe(id uint64, status model.BookingStatus) bool {
	prev, seen := s.statuses[id]
	s.statuses[id] = status
	if status != model.StatusInvited {
		return false
	}
	if !seen {
		return s.announceNew
	}
	return prev != model.StatusInvited
}

// Len is the number of tracked bookings.
func (s *Snapshot) Len() int { return len(s.statuses) }
