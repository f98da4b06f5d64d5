package middleware

// identity.go holds the helpers that read the caller set by JWTAuth.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// UserID returns the numeric user id stored by JWTAuth.  JSON numbers
// decode as float64 and some issuers encode the subject as a string, so
// every shape is accepted.
func UserID(c echo.Context) (uint64, bool) {
    switch v := c.Get("user_id").(type) {
    case uint64:
        return v, true
    case int:
        if v > 0 {
            return uint64(v), true
        }
    case int64:
        if v > 0 {
            return uint64(v), true
        }
    case float64:
        if v > 0 {
            return uint64(v), true
        }
    case string:
        if id, err := strconv.ParseUint(v, 10, 64); err == nil && id > 0 {
            return id, true
        }
    }
    return 0, false
}

// Role returns the role claim or "".
func Role(c echo.Context) string {
    r, _ := c.Get("role").(string)
    return r
}
