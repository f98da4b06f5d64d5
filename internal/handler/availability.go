package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-queue-booking/internal/model"
)

// AvailabilityFinder is the read side used by the public browse endpoints.
type AvailabilityFinder interface {
    DoctorAvailability(ctx context.Context, doctorID uint64, serviceID *uint64, start time.Time, days int) (*model.DoctorSlots, error)
    SearchAvailableDoctors(ctx context.Context, serviceID uint64, city string, start time.Time) ([]model.DoctorSlots, error)
    SearchOptions(ctx context.Context) (*model.SearchOptions, error)
}

// AvailabilityHandler serves free slots to guests and patients.
type AvailabilityHandler struct {
    svc AvailabilityFinder
}

func NewAvailabilityHandler(svc AvailabilityFinder) *AvailabilityHandler {
    if svc == nil {
        panic("nil service passed to NewAvailabilityHandler")
    }
    return &AvailabilityHandler{svc: svc}
}

// DoctorAvailability handles GET /v1/doctors/:id/availability.
// Optional query: service (id), date (YYYY-MM-DD, default today), days.
func (h *AvailabilityHandler) DoctorAvailability(c echo.Context) error {
    doctorID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid doctor id")
    }
    serviceID, ok := queryID(c, "service")
    if !ok {
        return badRequest(c, "invalid service id")
    }
    start, ok := queryDate(c, "date")
    if !ok {
        return badRequest(c, "date must be YYYY-MM-DD")
    }
    days := 0
    if raw := strings.TrimSpace(c.QueryParam("days")); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil || n < 0 {
            return badRequest(c, "days must be a positive number")
        }
        days = n
    }
    out, err := h.svc.DoctorAvailability(c.Request().Context(), doctorID, serviceID, start, days)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, out)
}

// SearchDoctors handles GET /v1/search/doctors?service=&city=&date=.
func (h *AvailabilityHandler) SearchDoctors(c echo.Context) error {
    serviceID, ok := queryID(c, "service")
    if !ok || serviceID == nil {
        return badRequest(c, "service is required")
    }
    start, ok := queryDate(c, "date")
    if !ok {
        return badRequest(c, "date must be YYYY-MM-DD")
    }
    out, err := h.svc.SearchAvailableDoctors(c.Request().Context(), *serviceID, strings.TrimSpace(c.QueryParam("city")), start)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"doctors": out})
}

// SearchOptions handles GET /v1/search/options.
func (h *AvailabilityHandler) SearchOptions(c echo.Context) error {
    out, err := h.svc.SearchOptions(c.Request().Context())
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, out)
}
