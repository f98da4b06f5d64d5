package handler

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "github.com/iliyamo/clinic-queue-booking/internal/feed"
    "github.com/iliyamo/clinic-queue-booking/internal/model"
    "github.com/iliyamo/clinic-queue-booking/internal/service"
)

type mockIssuer struct {
    issueFunc func(ctx context.Context, actor model.Actor, in service.IssueTicketInput) (*model.Booking, error)
}

func (m *mockIssuer) IssueTicket(ctx context.Context, a model.Actor, in service.IssueTicketInput) (*model.Booking, error) {
    return m.issueFunc(ctx, a, in)
}

// scriptedFeed emits a fixed list of events and then returns runErr.
type scriptedFeed struct {
    events []feed.Event
    runErr error
    calls  int
}

func (f *scriptedFeed) Run(_ context.Context, clinicID, _ uint64, emit feed.EmitFunc) error {
    f.calls++
    for _, ev := range f.events {
        ev.ClinicID = clinicID
        if err := emit(ev); err != nil {
            return nil
        }
    }
    return f.runErr
}

type staticAccess map[uint64]bool

func (a staticAccess) IsClinicAdmin(_ context.Context, clinicID, _ uint64) (bool, error) {
    return a[clinicID], nil
}

func newQueueHandler(issuer TicketIssuer, runner FeedRunner) *QueueHandler {
    return NewQueueHandler(issuer, runner, staticAccess{3: true}, time.Second, zerolog.Nop())
}

func TestIssueTicket(t *testing.T) {
    var got service.IssueTicketInput
    ticket := "A01"
    h := newQueueHandler(&mockIssuer{
        issueFunc: func(_ context.Context, _ model.Actor, in service.IssueTicketInput) (*model.Booking, error) {
            got = in
            return &model.Booking{ID: 1, TicketNumber: &ticket, Status: model.StatusInvited}, nil
        },
    }, &scriptedFeed{})
    c, rec := newContext(http.MethodPost, "/v1/clinics/3/queue/tickets", `{"doctor":1,"patient_full_name":"Ivan","patient_phone":"+700"}`)
    c.SetParamNames("id")
    c.SetParamValues("3")
    asStaff(c, model.RoleClinicAdmin)
    if err := h.IssueTicket(c); err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"number_coupon":"A01"`) {
        t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
    }
    if got.ClinicID != 3 || got.DoctorID == nil || *got.DoctorID != 1 || got.ServiceID != nil {
        t.Fatalf("unexpected input %+v", got)
    }
}

func TestIssueTicketNeedsDoctorOrService(t *testing.T) {
    h := newQueueHandler(&mockIssuer{}, &scriptedFeed{})
    c, rec := newContext(http.MethodPost, "/v1/clinics/3/queue/tickets", `{"patient_full_name":"Ivan","patient_phone":"+700"}`)
    c.SetParamNames("id")
    c.SetParamValues("3")
    asStaff(c, model.RoleClinicAdmin)
    _ = h.IssueTicket(c)
    if rec.Code != http.StatusBadRequest {
        t.Fatalf("expected 400, got %d", rec.Code)
    }
}

func TestIssueTicketQueueDisabled(t *testing.T) {
    h := newQueueHandler(&mockIssuer{
        issueFunc: func(context.Context, model.Actor, service.IssueTicketInput) (*model.Booking, error) {
            return nil, service.ErrForbidden
        },
    }, &scriptedFeed{})
    c, rec := newContext(http.MethodPost, "/v1/clinics/3/queue/tickets", `{"service":5,"patient_full_name":"Ivan","patient_phone":"+700"}`)
    c.SetParamNames("id")
    c.SetParamValues("3")
    asStaff(c, model.RoleClinicAdmin)
    _ = h.IssueTicket(c)
    if rec.Code != http.StatusForbidden {
        t.Fatalf("expected 403, got %d", rec.Code)
    }
}

func TestFeedSSEFrames(t *testing.T) {
    runner := &scriptedFeed{events: []feed.Event{{Type: feed.EventConnected}, {Type: feed.EventInitial}}}
    h := newQueueHandler(&mockIssuer{}, runner)
    c, rec := newContext(http.MethodGet, "/v1/clinics/3/queue/feed", "")
    c.SetParamNames("id")
    c.SetParamValues("3")
    asStaff(c, model.RoleQueueAdmin)
    if err := h.FeedSSE(c); err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
        t.Fatalf("unexpected content type %q", ct)
    }
    if rec.Header().Get("Cache-Control") != "no-cache" || rec.Header().Get("X-Accel-Buffering") != "no" {
        t.Fatalf("missing streaming headers: %v", rec.Header())
    }
    want := "data: {\"clinic_id\":3,\"type\":\"connected\"}\n\n" +
        "data: {\"appointments\":[],\"type\":\"initial\"}\n\n"
    if rec.Body.String() != want {
        t.Fatalf("unexpected stream:\n%q\nwant\n%q", rec.Body.String(), want)
    }
}

func TestFeedForeignClinicIsNotFound(t *testing.T) {
    runner := &scriptedFeed{}
    h := newQueueHandler(&mockIssuer{}, runner)
    c, rec := newContext(http.MethodGet, "/v1/clinics/9/queue/feed", "")
    c.SetParamNames("id")
    c.SetParamValues("9")
    asStaff(c, model.RoleClinicAdmin)
    _ = h.FeedSSE(c)
    if rec.Code != http.StatusNotFound {
        t.Fatalf("expected 404, got %d", rec.Code)
    }
    if runner.calls != 0 {
        t.Fatal("feed must not start for a foreign clinic")
    }
}

func TestFeedWebSocket(t *testing.T) {
    runner := &scriptedFeed{
        events: []feed.Event{{Type: feed.EventConnected}, {Type: feed.EventError, Message: "boom"}},
        runErr: errors.New("boom"),
    }
    h := newQueueHandler(&mockIssuer{}, runner)
    e := echo.New()
    e.GET("/v1/clinics/:id/queue/ws", h.FeedWS, func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            asStaff(c, model.RoleClinicAdmin)
            return next(c)
        }
    })
    srv := httptest.NewServer(e)
    defer srv.Close()

    url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/clinics/3/queue/ws"
    conn, _, err := websocket.DefaultDialer.Dial(url, nil)
    if err != nil {
        t.Fatalf("dial: %v", err)
    }
    defer conn.Close()
    _ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

    for _, want := range []string{`{"clinic_id":3,"type":"connected"}`, `{"message":"boom","type":"error"}`} {
        _, msg, err := conn.ReadMessage()
        if err != nil {
            t.Fatalf("read: %v", err)
        }
        if strings.TrimSpace(string(msg)) != want {
            t.Fatalf("expected %s, got %s", want, msg)
        }
    }
    _, _, err = conn.ReadMessage()
    if !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
        t.Fatalf("expected internal error close, got %v", err)
    }
}
