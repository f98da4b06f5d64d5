package middleware

import (
    "bytes"
    "encoding/json"
    "io"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"

    "github.com/iliyamo/clinic-queue-booking/internal/config"
)

// bookingBucket refills continuously at ARGV[2] tokens per millisecond.
// Returns {allowed, tokens left, ms until the next token}.
var bookingBucket = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local per_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now
tokens = math.min(capacity, tokens + math.max(0, now - ts) * per_ms)
local allowed, wait = 0, 0
if tokens >= 1 then
    allowed = 1
    tokens = tokens - 1
else
    wait = math.ceil((1 - tokens) / per_ms)
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[4]))
return {allowed, math.floor(tokens), wait}
`)

// maxKeyBody bounds how much of the request body BookingKey reads.
const maxKeyBody = 64 << 10

// BookingKey identifies a booking attempt by the requested doctor and the
// patient's phone digits, so one patient cannot sweep a doctor's slots.
// Requests whose body names neither fall back to the client IP.  The body
// is restored for the handler.
func BookingKey(c echo.Context) string {
    req := c.Request()
    var target struct {
        Doctor uint64 `json:"doctor"`
        Phone  string `json:"patient_phone"`
    }
    if req.Body != nil {
        raw, err := io.ReadAll(io.LimitReader(req.Body, maxKeyBody))
        req.Body.Close()
        req.Body = io.NopCloser(bytes.NewReader(raw))
        if err == nil {
            _ = json.Unmarshal(raw, &target)
        }
    }
    phone := digits(target.Phone)
    if target.Doctor == 0 || phone == "" {
        ip := c.RealIP()
        if ip == "" {
            ip = "unknown"
        }
        return "ip:" + ip
    }
    return "doctor:" + strconv.FormatUint(target.Doctor, 10) + ":phone:" + phone
}

func digits(s string) string {
    var b strings.Builder
    for _, r := range s {
        if r >= '0' && r <= '9' {
            b.WriteRune(r)
        }
    }
    return b.String()
}

// NewBookingLimiter keeps one token bucket per BookingKey in Redis, so the
// limit holds across every instance of the service.  Without a client the
// middleware is a pass-through, and a Redis error lets the request in.
func NewBookingLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log zerolog.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    interval := cfg.RefillInterval.Milliseconds()
    if interval < 1 {
        interval = 1
    }
    perMs := 1 / float64(interval)
    ttl := int64(cfg.TTL / time.Second)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := cfg.Prefix + ":booking:" + BookingKey(c)
            vals, err := bookingBucket.Run(c.Request().Context(), rdb, []string{key},
                cfg.Capacity, perMs, time.Now().UnixMilli(), ttl).Int64Slice()
            if err != nil || len(vals) != 3 {
                log.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
                return next(c)
            }
            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(vals[1], 10))
            if vals[0] == 1 {
                return next(c)
            }
            secs := (vals[2] + 999) / 1000
            h.Set("Retry-After", strconv.FormatInt(secs, 10))
            log.Debug().Str("key", key).Int64("retry_ms", vals[2]).Msg("booking rate limited")
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "too many booking attempts",
                "retry_after": secs,
            })
        }
    }
}
