package interview

import "time"

// Ticket is the session credential handed to a client before it opens the
// interview websocket. It binds exactly one user to one preset.
type Ticket struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	PresetID  string    `json:"presetId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the ticket is past its absolute expiry at now.
func (t Ticket) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// User is the minimal account record a completed interview is attached to.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
