package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-queue-booking/internal/model"
    "github.com/iliyamo/clinic-queue-booking/internal/service"
)

// BookingManager is the write and staff side of bookings.
type BookingManager interface {
    CreateBooking(ctx context.Context, in service.CreateBookingInput) (*model.Booking, error)
    UpdateBooking(ctx context.Context, actor model.Actor, id uint64, patch service.BookingPatch) (*model.Booking, error)
    ListClinicBookings(ctx context.Context, actor model.Actor, clinicID uint64) ([]model.Booking, error)
    ListDoctorBookings(ctx context.Context, actor model.Actor) ([]model.Booking, error)
    QueueSettings(ctx context.Context, actor model.Actor, clinicID uint64) (*model.QueueSettings, error)
}

// BookingHandler exposes booking creation to patients and the list and
// update endpoints to clinic staff.
type BookingHandler struct {
    svc BookingManager
}

func NewBookingHandler(svc BookingManager) *BookingHandler {
    if svc == nil {
        panic("nil service passed to NewBookingHandler")
    }
    return &BookingHandler{svc: svc}
}

type createBookingRequest struct {
    DoctorID        uint64  `json:"doctor" validate:"required"`
    ServiceID       *uint64 `json:"service"`
    PatientFullName string  `json:"patient_full_name" validate:"required,max=255"`
    PatientPhone    string  `json:"patient_phone" validate:"required,max=32"`
    Date            string  `json:"date" validate:"required,date"`
    TimeStart       string  `json:"time_start" validate:"required,clock"`
}

// Create handles POST /v1/bookings.  A 409 means the slot was taken
// between fetching availability and submitting.
func (h *BookingHandler) Create(c echo.Context) error {
    var req createBookingRequest
    if msg := bindValid(c, &req); msg != "" {
        return badRequest(c, msg)
    }
    b, err := h.svc.CreateBooking(c.Request().Context(), service.CreateBookingInput{
        DoctorID:        req.DoctorID,
        ServiceID:       req.ServiceID,
        PatientFullName: req.PatientFullName,
        PatientPhone:    req.PatientPhone,
        Date:            req.Date,
        Time:            req.TimeStart,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, b)
}

type updateBookingRequest struct {
    PatientFullName *string `json:"patient_full_name" validate:"omitempty,max=255"`
    PatientPhone    *string `json:"patient_phone" validate:"omitempty,max=32"`
    Date            *string `json:"date" validate:"omitempty,date"`
    TimeStart       *string `json:"time_start" validate:"omitempty,clock"`
    Status          *string `json:"status"`
    Comment         *string `json:"comment" validate:"omitempty,max=2000"`
}

// Update handles PATCH /v1/bookings/:id.  Absent fields are left as is.
func (h *BookingHandler) Update(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid booking id")
    }
    var req updateBookingRequest
    if msg := bindValid(c, &req); msg != "" {
        return badRequest(c, msg)
    }
    b, err := h.svc.UpdateBooking(c.Request().Context(), actor, id, service.BookingPatch{
        PatientFullName: req.PatientFullName,
        PatientPhone:    req.PatientPhone,
        Date:            req.Date,
        TimeStart:       req.TimeStart,
        Status:          req.Status,
        Comment:         req.Comment,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// ClinicBookings handles GET /v1/clinics/:id/bookings.
func (h *BookingHandler) ClinicBookings(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    clinicID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid clinic id")
    }
    list, err := h.svc.ListClinicBookings(c.Request().Context(), actor, clinicID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": nonNil(list)})
}

// DoctorBookings handles GET /v1/doctor/bookings for the calling doctor.
func (h *BookingHandler) DoctorBookings(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    list, err := h.svc.ListDoctorBookings(c.Request().Context(), actor)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": nonNil(list)})
}

// QueueSettings handles GET /v1/clinics/:id/queue/settings.
func (h *BookingHandler) QueueSettings(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    clinicID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid clinic id")
    }
    qs, err := h.svc.QueueSettings(c.Request().Context(), actor, clinicID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, qs)
}

func nonNil(list []model.Booking) []model.Booking {
    if list == nil {
        return []model.Booking{}
    }
    return list
}
