package config

import "time"

// CacheConfig defines settings for the availability cache.  When Enabled
// is false or no Redis client is configured, slot maps are computed on
// every request.  TTL bounds how long a computed map is served; every
// booking write bumps the doctor's version key so stale maps are never
// read after a change.
type CacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
func LoadCacheConfig() CacheConfig {
    c := CacheConfig{
        Enabled: envBool("CACHE_ENABLED", true),
        TTL:     envDur("CACHE_TTL", 30*time.Second),
        Prefix:  envStr("CACHE_PREFIX", "avail"),
    }
    if c.TTL <= 0 {
        c.TTL = 30 * time.Second
    }
    return c
}
