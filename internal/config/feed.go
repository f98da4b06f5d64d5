package config

import "time"

// FeedConfig controls the queue change feed.
//
//   FEED_POLL_INTERVAL         - wait between two reads of the clinic's day (default 2s)
//   FEED_ANNOUNCE_NEW_INVITED  - also call out tickets whose first sighting
//                                is already invited (default false)
//   FEED_WS_WRITE_TIMEOUT      - per-frame write deadline on WebSocket sessions
type FeedConfig struct {
    PollInterval       time.Duration
    AnnounceNewInvited bool
    WSWriteTimeout     time.Duration
}

func LoadFeedConfig() FeedConfig {
    c := FeedConfig{
        PollInterval:       envDur("FEED_POLL_INTERVAL", 2*time.Second),
        AnnounceNewInvited: envBool("FEED_ANNOUNCE_NEW_INVITED", false),
        WSWriteTimeout:     envDur("FEED_WS_WRITE_TIMEOUT", 10*time.Second),
    }
    if c.PollInterval <= 0 {
        c.PollInterval = 2 * time.Second
    }
    return c
}
