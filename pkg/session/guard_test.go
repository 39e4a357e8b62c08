package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uvolabs/owner-command/pkg/connector"
	"github.com/uvolabs/owner-command/pkg/protocol"
)

var errSessionInvalid = &protocol.RequestError{StatusCode: 1, ErrorType: 1, ErrorCode: 1003}

// fakeAuth issues a new session on every login.
type fakeAuth struct {
	mu     sync.Mutex
	logins int
}

func (f *fakeAuth) Login(ctx context.Context) (*Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	tok := New()
	tok.Populate(Snapshot{
		SessionID:  fmt.Sprintf("sid-%d", f.logins),
		VehicleKey: fmt.Sprintf("key-%d", f.logins),
		ValidUntil: time.Now().Add(time.Hour),
	})
	return tok, nil
}

func (f *fakeAuth) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

type keyedBody struct {
	mu     sync.Mutex
	VinKey []string
}

func (b *keyedBody) BindVehicleKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.VinKey = []string{key}
}

func (b *keyedBody) key() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.VinKey) == 0 {
		return ""
	}
	return b.VinKey[0]
}

func TestGuardRebindsBodyOnRetry(t *testing.T) {
	auth := &fakeAuth{}
	guard := NewGuard(auth)
	token := New()
	token.Populate(Snapshot{SessionID: "sid-stale", VehicleKey: "key-stale", ValidUntil: time.Now().Add(time.Hour)})

	body := &keyedBody{VinKey: []string{token.VehicleKey()}}
	var attempts int
	var retriedWithKey string
	rsp, err := guard.Do(context.Background(), token, body, func(ctx context.Context) (*connector.Response, error) {
		attempts++
		if sid := token.SessionID(); sid == "sid-stale" {
			return nil, errSessionInvalid
		}
		retriedWithKey = body.key()
		return &connector.Response{}, nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %s", err)
	}
	if rsp == nil {
		t.Fatal("Do returned nil response on success")
	}
	if attempts != 2 {
		t.Errorf("transport attempts = %d, want 2", attempts)
	}
	if retriedWithKey != "key-1" {
		t.Errorf("retried body carried key %q, want refreshed key-1", retriedWithKey)
	}
	if token.SessionID() != "sid-1" {
		t.Errorf("token not refreshed in place: %q", token.SessionID())
	}
}

func TestGuardRetriesAtMostOnce(t *testing.T) {
	auth := &fakeAuth{}
	guard := NewGuard(auth)
	token := New()
	token.Populate(Snapshot{SessionID: "sid-0", VehicleKey: "key-0", ValidUntil: time.Now().Add(time.Hour)})

	var attempts int
	_, err := guard.Do(context.Background(), token, nil, func(ctx context.Context) (*connector.Response, error) {
		attempts++
		return nil, errSessionInvalid
	})
	if attempts != 2 {
		t.Errorf("transport attempts = %d, want exactly 2 (original + one retry)", attempts)
	}
	if !protocol.SessionInvalid(err) {
		t.Errorf("expected the session-invalid failure to propagate, got %v", err)
	}
	if auth.loginCount() != 1 {
		t.Errorf("logins = %d, want 1", auth.loginCount())
	}
}

func TestGuardPassesThroughOtherErrors(t *testing.T) {
	auth := &fakeAuth{}
	guard := NewGuard(auth)
	token := New()
	token.Populate(Snapshot{SessionID: "sid-0", VehicleKey: "key-0", ValidUntil: time.Now().Add(time.Hour)})

	transportErr := &protocol.TransportError{Err: errors.New("connection refused")}
	var attempts int
	_, err := guard.Do(context.Background(), token, nil, func(ctx context.Context) (*connector.Response, error) {
		attempts++
		return nil, transportErr
	})
	if attempts != 1 {
		t.Errorf("transport errors must not be retried by the guard; attempts = %d", attempts)
	}
	if !errors.Is(err, transportErr) {
		t.Errorf("expected transport error to propagate, got %v", err)
	}
	if auth.loginCount() != 0 {
		t.Errorf("guard re-authenticated on a non-session error")
	}
}

// Two concurrent calls that both hit a session-invalid response must produce
// a single re-login and leave the shared token fully consistent.
func TestGuardSingleFlightRefresh(t *testing.T) {
	auth := &fakeAuth{}
	guard := NewGuard(auth)
	token := New()
	token.Populate(Snapshot{SessionID: "sid-0", VehicleKey: "key-0", ValidUntil: time.Now().Add(time.Hour)})

	// Barrier: both calls must observe the stale session before either
	// goroutine is allowed to start a refresh.
	var stale sync.WaitGroup
	stale.Add(2)
	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first := true
			_, err := guard.Do(context.Background(), token, nil, func(ctx context.Context) (*connector.Response, error) {
				if first {
					first = false
					stale.Done()
					stale.Wait()
					return nil, errSessionInvalid
				}
				if sid, key := token.Credentials(); sid != "sid-1" || key != "key-1" {
					return nil, fmt.Errorf("retry saw inconsistent credentials %q/%q", sid, key)
				}
				return &connector.Response{}, nil
			})
			if err == nil {
				successes.Add(1)
			} else {
				t.Errorf("concurrent call failed: %s", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 2 {
		t.Errorf("successes = %d, want 2", successes.Load())
	}
	if auth.loginCount() != 1 {
		t.Errorf("logins = %d, want a single shared re-authentication", auth.loginCount())
	}
}
