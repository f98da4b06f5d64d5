package config

import (
    "strconv"
    "strings"
    "time"
)

// Lookup helpers shared by the Load* functions.  Empty or unparsable
// values fall back to the default.

func envStr(k, d string) string { if s := v.GetString(k); s != "" { return s }; return d }
func envBool(k string, d bool) bool {
    s := v.GetString(k)
    if s == "" { return d }
    switch s {
    case "1","true","TRUE","True","yes","YES","on","ON": return true
    case "0","false","FALSE","False","no","NO","off","OFF": return false
    }
    return d
}
func envInt(k string, d int) int {
    s := v.GetString(k); if s == "" { return d }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return d
}
func envFloat(k string, d float64) float64 {
    s := v.GetString(k); if s == "" { return d }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    s := v.GetString(k); if s == "" { return d }
    if dur, err := time.ParseDuration(s); err == nil { return dur }
    return d
}

// envInt64List parses a comma separated list of integers, skipping
// entries that do not parse.
func envInt64List(k string) []int64 {
    out := []int64{}
    for _, p := range strings.Split(v.GetString(k), ",") {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        if n, err := strconv.ParseInt(p, 10, 64); err == nil { out = append(out, n) }
    }
    return out
}
