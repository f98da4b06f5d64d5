package middleware

import (
    "fmt"
    "net/http"
    "runtime"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID keeps an incoming X-Request-ID or mints a new one, stores it
// under "request_id" and echoes it on the response.
func RequestID() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            rid := c.Request().Header.Get(RequestIDHeader)
            if rid == "" || len(rid) > 128 {
                rid = uuid.NewString()
            }
            c.Set("request_id", rid)
            c.Response().Header().Set(RequestIDHeader, rid)
            return next(c)
        }
    }
}

// Logger writes one structured line per request.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            req := c.Request()
            rid, _ := c.Get("request_id").(string)

            err := next(c)
            if err != nil {
                // Let Echo write the error response first so the logged
                // status is the one the client sees.
                c.Error(err)
            }

            evt := logger.Info()
            if err != nil {
                evt = logger.Error().Err(err)
            }
            evt.
                Str("request_id", rid).
                Str("method", req.Method).
                Str("path", req.URL.Path).
                Int("status", c.Response().Status).
                Dur("latency", time.Since(start)).
                Str("remote_ip", c.RealIP()).
                Msg("request")
            return nil
        }
    }
}

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) (err error) {
            defer func() {
                if r := recover(); r != nil {
                    var stack [4096]byte
                    n := runtime.Stack(stack[:], false)
                    logger.Error().
                        Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
                        Str("panic", fmt.Sprintf("%v", r)).
                        Str("stack", string(stack[:n])).
                        Msg("panic recovered")
                    err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
                }
            }()
            return next(c)
        }
    }
}
