package models

import "time"

// RefreshToken is a server-side token that can be exchanged for a new
// access token until Expires.
type RefreshToken struct {
	ID        int64
	AccountID int64
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is no longer usable at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.Expires.After(now)
}
