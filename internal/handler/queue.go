package handler

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "github.com/iliyamo/clinic-queue-booking/internal/feed"
    "github.com/iliyamo/clinic-queue-booking/internal/model"
    "github.com/iliyamo/clinic-queue-booking/internal/service"
)

// TicketIssuer registers walk-ins in the electronic queue.
type TicketIssuer interface {
    IssueTicket(ctx context.Context, actor model.Actor, in service.IssueTicketInput) (*model.Booking, error)
}

// FeedRunner streams one feed session until ctx ends or emit fails.
type FeedRunner interface {
    Run(ctx context.Context, clinicID, userID uint64, emit feed.EmitFunc) error
}

// ClinicAccess answers whether a user administers a clinic.
type ClinicAccess interface {
    IsClinicAdmin(ctx context.Context, clinicID, userID uint64) (bool, error)
}

// QueueHandler serves ticket issuing and the live queue screen.
type QueueHandler struct {
    issuer       TicketIssuer
    feed         FeedRunner
    access       ClinicAccess
    writeTimeout time.Duration
    upgrader     websocket.Upgrader
    log          zerolog.Logger
}

func NewQueueHandler(issuer TicketIssuer, runner FeedRunner, access ClinicAccess, wsWriteTimeout time.Duration, log zerolog.Logger) *QueueHandler {
    if issuer == nil || runner == nil || access == nil {
        panic("nil dependency passed to NewQueueHandler")
    }
    if wsWriteTimeout <= 0 {
        wsWriteTimeout = 10 * time.Second
    }
    return &QueueHandler{
        issuer:       issuer,
        feed:         runner,
        access:       access,
        writeTimeout: wsWriteTimeout,
        // Queue screens are served from the clinic's own display hosts.
        upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
        log:      log.With().Str("component", "queue-handler").Logger(),
    }
}

type issueTicketRequest struct {
    DoctorID        *uint64 `json:"doctor" validate:"required_without=ServiceID"`
    ServiceID       *uint64 `json:"service" validate:"required_without=DoctorID"`
    PatientFullName string  `json:"patient_full_name" validate:"required,max=255"`
    PatientPhone    string  `json:"patient_phone" validate:"required,max=32"`
}

// IssueTicket handles POST /v1/clinics/:id/queue/tickets.
func (h *QueueHandler) IssueTicket(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    clinicID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid clinic id")
    }
    var req issueTicketRequest
    if msg := bindValid(c, &req); msg != "" {
        return badRequest(c, msg)
    }
    b, err := h.issuer.IssueTicket(c.Request().Context(), actor, service.IssueTicketInput{
        ClinicID:        clinicID,
        DoctorID:        req.DoctorID,
        ServiceID:       req.ServiceID,
        PatientFullName: req.PatientFullName,
        PatientPhone:    req.PatientPhone,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, b)
}

// authorizeFeed resolves the caller of a feed endpoint.  A clinic the
// caller does not administer is reported as missing.
func (h *QueueHandler) authorizeFeed(c echo.Context) (clinicID, userID uint64, err error) {
    actor, ok := actorFrom(c)
    if !ok {
        return 0, 0, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    clinicID, ok = pathID(c, "id")
    if !ok {
        return 0, 0, badRequest(c, "invalid clinic id")
    }
    isAdmin, aerr := h.access.IsClinicAdmin(c.Request().Context(), clinicID, actor.UserID)
    if aerr != nil {
        return 0, 0, writeError(c, aerr)
    }
    if !isAdmin {
        return 0, 0, c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    }
    return clinicID, actor.UserID, nil
}

// FeedSSE handles GET /v1/clinics/:id/queue/feed as a server-sent event
// stream.  Every event is one `data: <json>` frame.
func (h *QueueHandler) FeedSSE(c echo.Context) error {
    clinicID, userID, err := h.authorizeFeed(c)
    if clinicID == 0 {
        return err
    }
    w := c.Response()
    w.Header().Set(echo.HeaderContentType, "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    w.Header().Set("X-Accel-Buffering", "no")
    w.WriteHeader(http.StatusOK)
    w.Flush()

    emit := func(ev feed.Event) error {
        b, err := json.Marshal(ev)
        if err != nil {
            return err
        }
        if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
            return err
        }
        w.Flush()
        return nil
    }
    if err := h.feed.Run(c.Request().Context(), clinicID, userID, emit); err != nil {
        h.log.Debug().Err(err).Uint64("clinic_id", clinicID).Msg("sse feed ended with error")
    }
    return nil
}

// FeedWS handles GET /v1/clinics/:id/queue/ws.  Events are sent as JSON
// text frames; anything the client sends is ignored, and a read error or
// close frame ends the session.
func (h *QueueHandler) FeedWS(c echo.Context) error {
    clinicID, userID, err := h.authorizeFeed(c)
    if clinicID == 0 {
        return err
    }
    conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
    if err != nil {
        // Upgrade already wrote the handshake error.
        h.log.Debug().Err(err).Msg("websocket upgrade failed")
        return nil
    }
    defer conn.Close()

    ctx, cancel := context.WithCancel(c.Request().Context())
    defer cancel()
    go func() {
        defer cancel()
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()

    emit := func(ev feed.Event) error {
        _ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
        return conn.WriteJSON(ev)
    }
    runErr := h.feed.Run(ctx, clinicID, userID, emit)
    code, reason := websocket.CloseNormalClosure, ""
    if runErr != nil {
        code, reason = websocket.CloseInternalServerErr, "feed failed"
    }
    _ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
    return nil
}
