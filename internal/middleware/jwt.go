package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// AccessTokenCookie is the cookie consulted when neither the header nor the
// query carries a token.  Browsers cannot set headers on EventSource and
// WebSocket requests, so the feed endpoints rely on it or on ?token=.
const AccessTokenCookie = "access_token"

// JWTAuth returns an Echo middleware that validates an access token and
// injects the token's subject and role claims into the request context.  The
// provided secret must match the one used when issuing tokens.  Handlers
// read the authenticated user via `c.Get("user_id")` and `c.Get("role")`.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := tokenFrom(c)
            if raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }

            // Parse the token using an HMAC signing method and our secret;
            // any other algorithm is rejected.
            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }

            // Tokens minted by the account service carry the id in sub;
            // older ones use user_id.
            sub := claims["sub"]
            if sub == nil {
                sub = claims["user_id"]
            }
            c.Set("user_id", sub)
            c.Set("role", claims["role"])
            return next(c)
        }
    }
}

// tokenFrom looks for the raw token in the Authorization header, then in
// the token query parameter, then in the access_token cookie.
func tokenFrom(c echo.Context) string {
    if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
        return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    }
    if q := c.QueryParam("token"); q != "" {
        return q
    }
    if ck, err := c.Cookie(AccessTokenCookie); err == nil {
        return ck.Value
    }
    return ""
}
