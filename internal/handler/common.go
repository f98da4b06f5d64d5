package handler // handler defines the HTTP handlers of the booking and queue API

import (
    "errors"   // errors.As / errors.Is map service errors onto status codes
    "net/http" // HTTP status codes
    "strconv"  // parsing path and query parameters
    "strings"  // joining validation messages
    "time"     // parsing ?date=

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-queue-booking/internal/middleware"
    "github.com/iliyamo/clinic-queue-booking/internal/model"
    "github.com/iliyamo/clinic-queue-booking/internal/service"
    "github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// validate checks the request structs.  Besides the built-in tags it knows
// "date" (YYYY-MM-DD) and "clock" (HH:MM).
var validate = newValidator()

func newValidator() *validator.Validate {
    v := validator.New()
    _ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
        _, err := time.Parse(model.DateLayout, fl.Field().String())
        return err == nil
    })
    _ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
        _, err := timewindow.ParseClock(fl.Field().String())
        return err == nil
    })
    return v
}

// bindValid decodes the JSON body into req and runs the validator.  The
// returned message is empty when the request is usable.
func bindValid(c echo.Context, req interface{}) string {
    if err := c.Bind(req); err != nil {
        return "invalid JSON body"
    }
    if err := validate.Struct(req); err != nil {
        var verrs validator.ValidationErrors
        if errors.As(err, &verrs) {
            msgs := make([]string, 0, len(verrs))
            for _, fe := range verrs {
                msgs = append(msgs, strings.ToLower(fe.Field())+" is invalid ("+fe.Tag()+")")
            }
            return strings.Join(msgs, "; ")
        }
        return err.Error()
    }
    return ""
}

// actorFrom builds the caller from the claims JWTAuth stored.
func actorFrom(c echo.Context) (model.Actor, bool) {
    id, ok := middleware.UserID(c)
    if !ok {
        return model.Actor{}, false
    }
    return model.Actor{UserID: id, Role: middleware.Role(c)}, true
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return id, true
}

// queryID parses an optional positive numeric query parameter.  A present
// but malformed value is reported through ok=false.
func queryID(c echo.Context, name string) (id *uint64, ok bool) {
    raw := strings.TrimSpace(c.QueryParam(name))
    if raw == "" {
        return nil, true
    }
    n, err := strconv.ParseUint(raw, 10, 64)
    if err != nil || n == 0 {
        return nil, false
    }
    return &n, true
}

// queryDate parses ?name=YYYY-MM-DD; an absent value is the zero time.
func queryDate(c echo.Context, name string) (time.Time, bool) {
    raw := strings.TrimSpace(c.QueryParam(name))
    if raw == "" {
        return time.Time{}, true
    }
    t, err := time.Parse(model.DateLayout, raw)
    if err != nil {
        return time.Time{}, false
    }
    return t, true
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// writeError maps a service error onto the response status.
func writeError(c echo.Context, err error) error {
    var verr *service.ValidationError
    var cerr *service.ConflictError
    switch {
    case errors.As(err, &verr):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Error()})
    case errors.As(err, &cerr):
        return c.JSON(http.StatusConflict, echo.Map{"error": cerr.Reason})
    case errors.Is(err, service.ErrUnauthorized):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    case errors.Is(err, service.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, service.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    }
    // The request logger records the cause; the client only sees a 500.
    return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

// ErrorHandler renders errors that reach Echo in the same {"error": ...}
// shape the handlers use.
func ErrorHandler(err error, c echo.Context) {
    if c.Response().Committed {
        return
    }
    code := http.StatusInternalServerError
    msg := "internal error"
    var he *echo.HTTPError
    if errors.As(err, &he) {
        code = he.Code
        if s, ok := he.Message.(string); ok {
            msg = s
        } else {
            msg = http.StatusText(code)
        }
    }
    if c.Request().Method == http.MethodHead {
        _ = c.NoContent(code)
        return
    }
    _ = c.JSON(code, echo.Map{"error": msg})
}
