// Package repository defines the MySQL backed stores of the booking
// service and the error values they share.  These sentinel values allow
// higher layers such as services and handlers to distinguish between
// different failure scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
// Handlers translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not administer. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as a duplicate queue ticket number.
var ErrConflict = errors.New("conflict")

// ErrDuplicateSlot is returned when an insert or update trips the unique
// index over (doctor, date, time_start) of active scheduled bookings.
// It is the storage level backstop behind the reservation guard.
var ErrDuplicateSlot = errors.New("slot already taken")

// erDupEntry is the MySQL error number for a unique key violation.
const erDupEntry = 1062

// slotIndexName is the unique index that serialises slot inserts.
const slotIndexName = "uq_appointments_active_slot"

// mapWriteError converts a duplicate key violation into ErrDuplicateSlot or
// ErrConflict and returns every other error unchanged.
func mapWriteError(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != erDupEntry {
		return err
	}
	if strings.Contains(me.Message, slotIndexName) {
		return ErrDuplicateSlot
	}
	return ErrConflict
}
