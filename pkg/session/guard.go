package session

import (
	"context"

	"github.com/uvolabs/owner-command/internal/log"
	"github.com/uvolabs/owner-command/pkg/connector"
	"github.com/uvolabs/owner-command/pkg/protocol"
)

// Authenticator performs a full login and returns a freshly populated Token.
type Authenticator interface {
	Login(ctx context.Context) (*Token, error)
}

// RoundTrip performs one authenticated exchange with the backend, reading the
// token's credentials at call time so a retry after a refresh picks up the
// new session automatically. The returned error must already be classified
// (see [connector.Classify]).
type RoundTrip func(ctx context.Context) (*connector.Response, error)

// Guard wraps authenticated round trips with re-authentication. When the
// backend reports the session invalid, the guard logs in again, adopts the
// fresh credentials into the caller's Token in place, rebinds any vehicle-key
// reference in the request body, and re-issues the call exactly once. A
// second failure propagates; there is no further retry, so a persistently
// broken session cannot loop.
type Guard struct {
	auth Authenticator

	// refreshing serializes re-logins so concurrent session-invalid responses
	// trigger a single login rather than one per caller.
	refreshing chan struct{}
}

func NewGuard(auth Authenticator) *Guard {
	g := &Guard{auth: auth, refreshing: make(chan struct{}, 1)}
	g.refreshing <- struct{}{}
	return g
}

// Do issues call and retries it at most once after recovering from a
// session-invalid response. body is the request body sent by call, if any;
// bodies implementing [connector.VehicleKeyed] are rebound to the refreshed
// vehicle key before the retry.
func (g *Guard) Do(ctx context.Context, token *Token, body any, call RoundTrip) (*connector.Response, error) {
	staleID := token.SessionID()
	rsp, err := call(ctx)
	if err == nil || !protocol.SessionInvalid(err) {
		return rsp, err
	}

	if err := g.refresh(ctx, token, staleID); err != nil {
		return nil, err
	}
	if keyed, ok := body.(connector.VehicleKeyed); ok && keyed != nil {
		keyed.BindVehicleKey(token.VehicleKey())
	}
	return call(ctx)
}

// refresh re-authenticates unless another caller already rotated the session
// out from under us, in which case the existing fresh credentials are reused.
func (g *Guard) refresh(ctx context.Context, token *Token, staleID string) error {
	select {
	case <-g.refreshing:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { g.refreshing <- struct{}{} }()

	if token.SessionID() != staleID {
		log.Debug("Session already refreshed by a concurrent caller")
		return nil
	}
	log.Debug("Session invalid; re-authenticating")
	fresh, err := g.auth.Login(ctx)
	if err != nil {
		return err
	}
	token.Adopt(fresh)
	log.Debug("Session refreshed")
	return nil
}
