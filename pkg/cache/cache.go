// Package cache persists session tokens between process runs so a CLI
// invocation can reuse a recent session instead of logging in every time.
package cache

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/uvolabs/owner-command/pkg/session"
)

// SessionCache holds session snapshots keyed by account username. Sessions
// are short-lived, so the cache mostly spares back-to-back invocations a
// redundant login.
type SessionCache struct {
	MaxEntries int
	Accounts   map[string]session.Snapshot `json:"accounts"`
	lock       sync.Mutex
}

// New returns a SessionCache holding sessions for up to maxEntries accounts,
// evicting the account whose session was refreshed longest ago. Set
// maxEntries to zero for an unbounded cache.
func New(maxEntries int) *SessionCache {
	return &SessionCache{
		MaxEntries: maxEntries,
		Accounts:   make(map[string]session.Snapshot),
	}
}

// Import reads a SessionCache from r. The data should previously have been
// generated using [SessionCache.Export].
func Import(r io.Reader) (*SessionCache, error) {
	var cache SessionCache
	if err := json.NewDecoder(r).Decode(&cache); err != nil {
		return nil, err
	}
	if cache.Accounts == nil {
		cache.Accounts = make(map[string]session.Snapshot)
	}
	return &cache, nil
}

// ImportFromFile reads a SessionCache from disk.
func ImportFromFile(filename string) (*SessionCache, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized SessionCache to w.
func (c *SessionCache) Export(w io.Writer) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return json.NewEncoder(w).Encode(c)
}

// ExportToFile writes a SessionCache to disk. Session identifiers grant
// account access, so the file is not group or world readable.
func (c *SessionCache) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Export(file)
}

// Update stores the token's current snapshot under username, evicting the
// stalest account if the cache is over capacity.
func (c *SessionCache) Update(username string, token *session.Token) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.Accounts[username] = token.Snapshot()
	if c.MaxEntries > 0 && len(c.Accounts) > c.MaxEntries {
		oldestAccount := username
		oldestExpiry := time.Now().Add(24 * time.Hour)
		for account, snap := range c.Accounts {
			if snap.ValidUntil.Before(oldestExpiry) {
				oldestAccount = account
				oldestExpiry = snap.ValidUntil
			}
		}
		delete(c.Accounts, oldestAccount)
	}
}

// Load returns a Token restored from username's cached snapshot, or false if
// the cache has no still-valid session for the account.
func (c *SessionCache) Load(username string) (*session.Token, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	snap, ok := c.Accounts[username]
	if !ok || !time.Now().Before(snap.ValidUntil) {
		return nil, false
	}
	token := session.New()
	token.Populate(snap)
	return token, true
}
