// Package cache keeps computed availability maps in Redis.
//
// Every doctor has a version counter.  Entries are written under the
// version read before the map was computed and a booking write bumps it,
// so a stale map is never served after a change even though it lingers
// until its TTL expires.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-queue-booking/internal/config"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// opTimeout bounds a single Redis round trip so a slow cache never slows
// an availability query down by much.
const opTimeout = 200 * time.Millisecond

// Availability implements the slot cache of the availability service.
// A nil *Availability or one without a client is valid and always misses.
type Availability struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

// NewAvailability returns nil when caching is disabled or rdb is nil.
func NewAvailability(cfg config.CacheConfig, rdb *redis.Client, log zerolog.Logger) *Availability {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &Availability{rdb: rdb, ttl: cfg.TTL, prefix: cfg.Prefix, log: log.With().Str("component", "availability_cache").Logger()}
}

func (a *Availability) versionKey(doctorID uint64) string {
	return fmt.Sprintf("%s:ver:%d", a.prefix, doctorID)
}

func (a *Availability) entryKey(doctorID uint64, version int64, variant string) string {
	sum := sha1.Sum([]byte(variant))
	return fmt.Sprintf("%s:slots:%d:%d:%x", a.prefix, doctorID, version, sum[:])
}

func (a *Availability) version(ctx context.Context, doctorID uint64) (int64, error) {
	v, err := a.rdb.Get(ctx, a.versionKey(doctorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get returns the cached map of a variant together with the doctor's
// version it looked under.  Errors count as a miss.  The version must be
// handed back to Set so that a map computed before a concurrent booking
// write lands under the old version and is never read again.  A negative
// version means the counter could not be read.
func (a *Availability) Get(ctx context.Context, doctorID uint64, variant string) (map[string][]timewindow.Clock, int64, bool) {
	if a == nil || a.rdb == nil {
		return nil, -1, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	ver, err := a.version(ctx, doctorID)
	if err != nil {
		a.log.Debug().Err(err).Uint64("doctor_id", doctorID).Msg("cache version read failed")
		return nil, -1, false
	}
	raw, err := a.rdb.Get(ctx, a.entryKey(doctorID, ver, variant)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			a.log.Debug().Err(err).Uint64("doctor_id", doctorID).Msg("cache read failed")
		}
		return nil, ver, false
	}
	var slots map[string][]timewindow.Clock
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, ver, false
	}
	return slots, ver, true
}

// Set stores a map under the version returned by the Get that preceded
// the computation.
func (a *Availability) Set(ctx context.Context, doctorID uint64, variant string, version int64, slots map[string][]timewindow.Clock) {
	if a == nil || a.rdb == nil || version < 0 {
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := a.rdb.Set(ctx, a.entryKey(doctorID, version, variant), raw, a.ttl).Err(); err != nil {
		a.log.Debug().Err(err).Uint64("doctor_id", doctorID).Msg("cache write failed")
	}
}

// Invalidate bumps the doctor's version.  The previous entries expire on
// their own.
func (a *Availability) Invalidate(ctx context.Context, doctorID uint64) {
	if a == nil || a.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()
	if err := a.rdb.Incr(ctx, a.versionKey(doctorID)).Err(); err != nil {
		a.log.Warn().Err(err).Uint64("doctor_id", doctorID).Msg("cache invalidation failed")
	}
}
