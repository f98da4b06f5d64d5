package model

// Role names carried in the access token's role claim.  Logins and
// sessions are issued elsewhere; this service only reads the claim.
const (
	RoleClinicAdmin = "clinic_admin"
	RoleQueueAdmin  = "clinic_queue_admin"
	RoleDoctor      = "doctor"
	RolePatient     = "patient"
)

// Actor is the authenticated caller of a booking operation.
type Actor struct {
	UserID uint64
	Role   string
}
