package config

import "time"

// RateLimitConfig drives the booking limiter: each patient may try
// Capacity bookings of one doctor in a burst, then one more per
// RefillInterval.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillInterval time.Duration
    TTL            time.Duration
    Prefix         string
}

func LoadRateLimitConfig() RateLimitConfig {
    def := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 5),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 12*time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
    }
    if def.Capacity < 1 { def.Capacity = 1 }
    if def.RefillInterval <= 0 { def.RefillInterval = 12 * time.Second }
    minTTL := 5 * def.RefillInterval
    if def.TTL < minTTL { def.TTL = minTTL }
    return def
}
