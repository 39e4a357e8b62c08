// Package session manages owners-backend session credentials: the Token
// holding them and the Guard that transparently re-authenticates calls when
// the backend invalidates a session.
package session

import (
	"sync"
	"time"
)

// Snapshot is a consistent copy of a Token's fields. It is the unit of
// wholesale population: a Token is either unset or carries a complete
// Snapshot, never a partial one.
type Snapshot struct {
	SessionID  string    `json:"sessionId"`
	VehicleKey string    `json:"vehicleKey"`
	VIN        string    `json:"vin"`
	VehicleID  string    `json:"vehicleId"`
	Nickname   string    `json:"nickname"`
	Model      string    `json:"model"`
	EnrolledOn string    `json:"enrolledOn"`
	ValidUntil time.Time `json:"validUntil"`
}

// Token holds the credentials for one vehicle session. All access goes
// through the mutex so that a guard-driven refresh is atomic with respect to
// concurrent readers: callers hold a reference to the same Token and observe
// refreshed credentials without re-fetching it.
type Token struct {
	mu          sync.RWMutex
	snap        Snapshot
	refreshedAt time.Time
}

// New returns an unset Token. It becomes usable after Populate, typically via
// a successful login.
func New() *Token {
	return &Token{}
}

// Populate overwrites every field from snap and stamps the refresh time.
func (t *Token) Populate(snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = snap
	t.refreshedAt = time.Now()
}

// Adopt copies fresh's credentials into t in place. Used by the session guard
// so that every caller sharing t observes the refreshed session.
func (t *Token) Adopt(fresh *Token) {
	t.Populate(fresh.Snapshot())
}

// Snapshot returns a consistent copy of the token's fields.
func (t *Token) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// SessionID returns the opaque session identifier sent as the sid header.
func (t *Token) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.SessionID
}

// VehicleKey returns the backend's registration key for the selected vehicle.
func (t *Token) VehicleKey() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.VehicleKey
}

// Credentials returns the session identifier and vehicle key as a single
// atomic read, so a concurrent refresh cannot produce a mixed pair.
func (t *Token) Credentials() (sessionID, vehicleKey string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.SessionID, t.snap.VehicleKey
}

// VIN returns the vehicle identification number bound to the session.
func (t *Token) VIN() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.VIN
}

// Empty reports whether the token has never been populated.
func (t *Token) Empty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.SessionID == ""
}

// Valid reports whether the token is populated and inside its validity
// window. The window is approximate (the backend does not advertise an
// expiry), so callers must still be prepared for session-invalid responses.
func (t *Token) Valid() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.SessionID != "" && time.Now().Before(t.snap.ValidUntil)
}

// RefreshedAt returns the time of the most recent population.
func (t *Token) RefreshedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refreshedAt
}
