package router

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "github.com/iliyamo/clinic-queue-booking/internal/feed"
    "github.com/iliyamo/clinic-queue-booking/internal/handler"
    "github.com/iliyamo/clinic-queue-booking/internal/model"
    "github.com/iliyamo/clinic-queue-booking/internal/service"
    "github.com/iliyamo/clinic-queue-booking/internal/utils"
)

type stubService struct{}

func (stubService) DoctorAvailability(context.Context, uint64, *uint64, time.Time, int) (*model.DoctorSlots, error) {
    return &model.DoctorSlots{}, nil
}
func (stubService) SearchAvailableDoctors(context.Context, uint64, string, time.Time) ([]model.DoctorSlots, error) {
    return nil, nil
}
func (stubService) SearchOptions(context.Context) (*model.SearchOptions, error) {
    return &model.SearchOptions{}, nil
}
func (stubService) CreateBooking(context.Context, service.CreateBookingInput) (*model.Booking, error) {
    return &model.Booking{}, nil
}
func (stubService) UpdateBooking(context.Context, model.Actor, uint64, service.BookingPatch) (*model.Booking, error) {
    return &model.Booking{}, nil
}
func (stubService) ListClinicBookings(context.Context, model.Actor, uint64) ([]model.Booking, error) {
    return nil, nil
}
func (stubService) ListDoctorBookings(context.Context, model.Actor) ([]model.Booking, error) {
    return nil, nil
}
func (stubService) QueueSettings(context.Context, model.Actor, uint64) (*model.QueueSettings, error) {
    return &model.QueueSettings{}, nil
}
func (stubService) IssueTicket(context.Context, model.Actor, service.IssueTicketInput) (*model.Booking, error) {
    return &model.Booking{}, nil
}
func (stubService) Run(context.Context, uint64, uint64, feed.EmitFunc) error { return nil }
func (stubService) IsClinicAdmin(context.Context, uint64, uint64) (bool, error) {
    return true, nil
}

func newServer() *echo.Echo {
    e := echo.New()
    e.HTTPErrorHandler = handler.ErrorHandler
    s := stubService{}
    Register(e, Handlers{
        Availability: handler.NewAvailabilityHandler(s),
        Bookings:     handler.NewBookingHandler(s),
        Queue:        handler.NewQueueHandler(s, s, s, time.Second, zerolog.Nop()),
    }, "secret", func(next echo.HandlerFunc) echo.HandlerFunc { return next })
    return e
}

func TestRouteAccess(t *testing.T) {
    e := newServer()
    admin, _ := utils.NewAccessToken("secret", 1, model.RoleClinicAdmin, time.Hour)
    patient, _ := utils.NewAccessToken("secret", 2, model.RolePatient, time.Hour)
    tests := []struct {
        method, path, token string
        want                int
    }{
        {http.MethodGet, "/healthz", "", http.StatusOK},
        {http.MethodGet, "/v1/doctors/1/availability", "", http.StatusOK},
        {http.MethodGet, "/v1/clinics/1/bookings", "", http.StatusUnauthorized},
        {http.MethodGet, "/v1/clinics/1/bookings", patient.Token, http.StatusForbidden},
        {http.MethodGet, "/v1/clinics/1/bookings", admin.Token, http.StatusOK},
        {http.MethodGet, "/v1/clinics/1/queue/settings", admin.Token, http.StatusOK},
        {http.MethodGet, "/v1/doctor/bookings", admin.Token, http.StatusForbidden},
    }
    for _, tt := range tests {
        req := httptest.NewRequest(tt.method, tt.path, nil)
        if tt.token != "" {
            req.Header.Set("Authorization", "Bearer "+tt.token)
        }
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        if rec.Code != tt.want {
            t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rec.Code)
        }
    }
}
