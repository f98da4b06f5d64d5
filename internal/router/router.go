package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/iliyamo/clinic-queue-booking/internal/handler"    // HTTP handlers
    "github.com/iliyamo/clinic-queue-booking/internal/middleware" // JWT authentication and role enforcement
    "github.com/iliyamo/clinic-queue-booking/internal/model"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
    Availability *handler.AvailabilityHandler
    Bookings     *handler.BookingHandler
    Queue        *handler.QueueHandler
    Ready        echo.HandlerFunc
}

// Register wires every route onto e.
//
// Guests browse availability and create bookings under /v1 without a
// token; booking creation sits behind the rate limiter.  Staff routes
// require a valid access token and one of the staff roles; finer ownership
// rules are applied by the services.
func Register(e *echo.Echo, h Handlers, jwtSecret string, limiter echo.MiddlewareFunc) {
    e.GET("/healthz", handler.Health)
    if h.Ready != nil {
        e.GET("/readyz", h.Ready)
    }

    pub := e.Group("/v1")
    pub.GET("/search/options", h.Availability.SearchOptions)
    pub.GET("/search/doctors", h.Availability.SearchDoctors)
    pub.GET("/doctors/:id/availability", h.Availability.DoctorAvailability)
    pub.POST("/bookings", h.Bookings.Create, limiter)

    auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
    auth.PATCH("/bookings/:id", h.Bookings.Update, middleware.RequireRole(model.RoleClinicAdmin, model.RoleDoctor))
    auth.GET("/doctor/bookings", h.Bookings.DoctorBookings, middleware.RequireRole(model.RoleDoctor))

    staff := auth.Group("/clinics/:id", middleware.RequireRole(model.RoleClinicAdmin, model.RoleQueueAdmin))
    staff.GET("/bookings", h.Bookings.ClinicBookings)
    staff.GET("/queue/settings", h.Bookings.QueueSettings)
    staff.GET("/queue/feed", h.Queue.FeedSSE)
    staff.GET("/queue/ws", h.Queue.FeedWS)
    staff.POST("/queue/tickets", h.Queue.IssueTicket)
}
