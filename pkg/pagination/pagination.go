package pagination

import (
	"net/http"
	"strconv"
	"time"
)

// Params holds keyset pagination parameters taken from the query string.
// Zero values mean "not supplied".
type Params struct {
	Limit         int        `json:"limit,omitempty"`
	StartingAfter *time.Time `json:"starting_after,omitempty"`
}

// FromRequest reads limit and starting_after (RFC 3339) from the query.
// Malformed or non-positive values are ignored; limits above max are capped.
func FromRequest(r *http.Request, max int) Params {
	var p Params
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			p.Limit = v
			if max > 0 && v > max {
				p.Limit = max
			}
		}
	}

	if raw := q.Get("starting_after"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ts = ts.UTC()
			p.StartingAfter = &ts
		}
	}
	return p
}

// Merge overlays the query values onto a limit and cursor decoded from a
// request body, preferring the query.
func (p Params) Merge(limit int, cursor *time.Time) (int, *time.Time) {
	if p.Limit > 0 {
		limit = p.Limit
	}
	if p.StartingAfter != nil {
		cursor = p.StartingAfter
	}
	return limit, cursor
}
