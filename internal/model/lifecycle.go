package model

// BookingStatus is the lifecycle state of a booking.  Scheduled appointments
// and queue tickets draw from different, overlapping sets.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCanceled  BookingStatus = "canceled"
	StatusRejected  BookingStatus = "rejected"
	StatusFinished  BookingStatus = "finished"
	StatusInvited   BookingStatus = "invited"
	StatusNoShow    BookingStatus = "no_show"
	StatusUrgent    BookingStatus = "urgent"
	StatusMissed    BookingStatus = "missed"
)

var scheduledStatuses = map[BookingStatus]bool{
	StatusPending: true, StatusConfirmed: true, StatusCanceled: true, StatusRejected: true,
	StatusFinished: true, StatusInvited: true, StatusNoShow: true, StatusUrgent: true,
}

var queueStatuses = map[BookingStatus]bool{
	StatusPending: true, StatusInvited: true, StatusMissed: true,
	StatusCanceled: true, StatusFinished: true, StatusUrgent: true,
}

// InactiveScheduledStatuses are the statuses that release a slot.  The same
// list is used by every store query that filters active bookings.
var InactiveScheduledStatuses = []BookingStatus{StatusCanceled, StatusRejected, StatusFinished, StatusNoShow}

// InactiveQueueStatuses release a queue ticket.
var InactiveQueueStatuses = []BookingStatus{StatusMissed, StatusCanceled, StatusFinished}

// WaitingStatuses are the ticket states that keep a doctor busy for the
// purpose of calling the next walk-in straight away.
var WaitingStatuses = []BookingStatus{StatusInvited, StatusPending}

// scheduledTransitions lists the forward moves of a scheduled appointment.
// Escalation to urgent is added for every non-terminal state by
// CanTransition.
var scheduledTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCanceled, StatusRejected, StatusInvited},
	StatusConfirmed: {StatusFinished, StatusNoShow, StatusCanceled, StatusRejected, StatusInvited},
	StatusInvited:   {StatusConfirmed, StatusFinished, StatusNoShow, StatusCanceled, StatusRejected, StatusPending},
	StatusUrgent:    {StatusPending, StatusConfirmed, StatusInvited, StatusFinished, StatusNoShow, StatusCanceled, StatusRejected},
}

var queueTransitions = map[BookingStatus][]BookingStatus{
	StatusPending: {StatusInvited, StatusCanceled, StatusMissed},
	StatusInvited: {StatusFinished, StatusMissed, StatusCanceled, StatusPending},
	StatusUrgent:  {StatusPending, StatusInvited, StatusFinished, StatusMissed, StatusCanceled},
}

// ValidStatus reports whether s belongs to the status set of kind.
func ValidStatus(kind BookingKind, s BookingStatus) bool {
	if kind == KindQueue {
		return queueStatuses[s]
	}
	return scheduledStatuses[s]
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(kind BookingKind, s BookingStatus) bool {
	return !IsActiveStatus(kind, s)
}

// IsActiveStatus is the active-booking predicate: a booking whose status
// is outside the inactive set occupies its interval.
func IsActiveStatus(kind BookingKind, s BookingStatus) bool {
	inactive := InactiveScheduledStatuses
	if kind == KindQueue {
		inactive = InactiveQueueStatuses
	}
	for _, st := range inactive {
		if st == s {
			return false
		}
	}
	return true
}

// CanTransition reports whether a booking of the given kind may move from
// one status to another.  Staying in the same status is always allowed so
// that field-only patches pass through.
func CanTransition(kind BookingKind, from, to BookingStatus) bool {
	if !ValidStatus(kind, to) {
		return false
	}
	if from == to {
		return true
	}
	if IsTerminal(kind, from) {
		return false
	}
	if to == StatusUrgent {
		return true
	}
	table := scheduledTransitions
	if kind == KindQueue {
		table = queueTransitions
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}
