package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionType is the kind of session requested by a caller.
type SessionType string

// SessionTypeLock reserves the admitted set until redeem or expiry.
const SessionTypeLock SessionType = "LOCK"

// TTLUnit is the unit of a session TTL.
type TTLUnit string

// TTL units.
const (
	TTLDays         TTLUnit = "DAYS"
	TTLHours        TTLUnit = "HOURS"
	TTLMinutes      TTLUnit = "MINUTES"
	TTLSeconds      TTLUnit = "SECONDS"
	TTLMilliseconds TTLUnit = "MILLISECONDS"
	TTLMicroseconds TTLUnit = "MICROSECONDS"
	TTLNanoseconds  TTLUnit = "NANOSECONDS"
)

// Duration converts ttl expressed in u into a time.Duration.
func (u TTLUnit) Duration(ttl int64) (time.Duration, error) {
	var unit time.Duration
	switch TTLUnit(strings.ToUpper(string(u))) {
	case TTLDays:
		unit = 24 * time.Hour
	case TTLHours:
		unit = time.Hour
	case TTLMinutes:
		unit = time.Minute
	case TTLSeconds, "":
		unit = time.Second
	case TTLMilliseconds:
		unit = time.Millisecond
	case TTLMicroseconds:
		unit = time.Microsecond
	case TTLNanoseconds:
		unit = time.Nanosecond
	default:
		return 0, fmt.Errorf("unknown ttl unit %q", u)
	}
	return time.Duration(ttl) * unit, nil
}

// SessionRequest is the caller's opt-in to session locking.
type SessionRequest struct {
	Type    SessionType `json:"type"`
	Key     string      `json:"key,omitempty"`
	TTL     *int64      `json:"ttl,omitempty"`
	TTLUnit TTLUnit     `json:"ttl_unit,omitempty"`
}

// SessionLock reserves one redeemable under a session key.
type SessionLock struct {
	TenantID   string         `json:"tenant_id"`
	SessionKey string         `json:"session_key"`
	Kind       RedeemableKind `json:"kind"`
	ID         string         `json:"id"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Ref returns the redeemable the lock reserves.
func (l SessionLock) Ref() RedeemableRef {
	return RedeemableRef{Kind: l.Kind, ID: l.ID}
}

// ExpiredAt reports whether the lock has expired at now. Locks without an
// expiry never expire.
func (l SessionLock) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// Session is returned to the caller after locks were acquired.
type Session struct {
	Key       string      `json:"key"`
	Type      SessionType `json:"type"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Locked    int         `json:"locked"`
}
