// Package vehicle exposes the operations a client can perform on a vehicle
// through an owners-cloud backend: status reads, lock/unlock, climate, and
// charge control. Asynchronous commands are issued through a [Backend] and
// then awaited via the command-status poller, so a method returning nil means
// the backend confirmed completion, not merely acceptance.
package vehicle

import (
	"context"
	"errors"

	"github.com/uvolabs/owner-command/pkg/poll"
	"github.com/uvolabs/owner-command/pkg/protocol"
	"github.com/uvolabs/owner-command/pkg/session"
)

// ErrNoHandle indicates the backend accepted an asynchronous command but did
// not return a handle to poll for completion.
var ErrNoHandle = errors.New("backend returned no command handle")

// Backend is the vendor/region-specific protocol implementation. One
// implementation exists per backend (see pkg/connector/kiausa); operations a
// backend does not support must return [protocol.ErrUnsupported] rather than
// silently succeeding — embed [Unsupported] to get that behavior for free.
//
// Command methods return the backend's handle for the in-flight command; the
// [Vehicle] facade is responsible for awaiting completion. All methods taking
// a Token must route through the backend's session guard so an invalidated
// session is repaired transparently.
type Backend interface {
	// Login authenticates with the configured account credentials and returns
	// a fully populated session token bound to the account's first vehicle.
	Login(ctx context.Context) (*session.Token, error)

	// CachedVehicleStatus returns the backend's cached view of the vehicle
	// without contacting the physical vehicle.
	CachedVehicleStatus(ctx context.Context, token *session.Token) (*Status, error)

	// SyncVehicleStatus asks the backend to refresh its cache from the
	// physical vehicle. Fire and forget: there is no completion handle.
	SyncVehicleStatus(ctx context.Context, token *session.Token) error

	LockDoors(ctx context.Context, token *session.Token) (protocol.ActionHandle, error)
	UnlockDoors(ctx context.Context, token *session.Token) (protocol.ActionHandle, error)
	StartClimate(ctx context.Context, token *session.Token, settings ClimateSettings) (protocol.ActionHandle, error)
	StopClimate(ctx context.Context, token *session.Token) (protocol.ActionHandle, error)
	StartCharge(ctx context.Context, token *session.Token) (protocol.ActionHandle, error)
	StopCharge(ctx context.Context, token *session.Token) (protocol.ActionHandle, error)

	// ActionStatus reports per-sub-check completion codes for an in-flight
	// command. Satisfies [poll.Monitor].
	ActionStatus(ctx context.Context, token *session.Token, handle protocol.ActionHandle) (map[string]int, error)
}

// A Vehicle binds a Backend to one session token. Methods are safe for
// concurrent use: commands sharing the token coordinate through the backend's
// session guard, and each command's completion poll runs independently, so a
// slow poll on one goroutine does not stall calls on another.
type Vehicle struct {
	backend Backend
	token   *session.Token
	awaiter *poll.Awaiter
}

// New returns a Vehicle issuing commands through backend with token. The
// awaiter may be nil, in which case command completion is polled with default
// timing.
func New(backend Backend, token *session.Token, awaiter *poll.Awaiter) *Vehicle {
	if awaiter == nil {
		awaiter = &poll.Awaiter{}
	}
	if awaiter.Monitor == nil {
		awaiter.Monitor = backend
	}
	return &Vehicle{backend: backend, token: token, awaiter: awaiter}
}

// Token returns the session token shared by this vehicle's operations.
// Callers may hold it across commands; the session guard refreshes it in
// place after a re-authentication.
func (v *Vehicle) Token() *session.Token {
	return v.token
}

func (v *Vehicle) VIN() string {
	return v.token.VIN()
}

// Status returns the backend's cached view of the vehicle.
func (v *Vehicle) Status(ctx context.Context) (*Status, error) {
	return v.backend.CachedVehicleStatus(ctx, v.token)
}

// Sync requests a fresh read from the physical vehicle. The refreshed data
// becomes visible through Status once the vehicle reports in; there is no
// completion signal to wait on.
func (v *Vehicle) Sync(ctx context.Context) error {
	return v.backend.SyncVehicleStatus(ctx, v.token)
}

// Lock locks the doors and waits for the backend to confirm completion.
func (v *Vehicle) Lock(ctx context.Context) error {
	return v.execute(ctx, v.backend.LockDoors)
}

// Unlock unlocks the doors and waits for the backend to confirm completion.
func (v *Vehicle) Unlock(ctx context.Context) error {
	return v.execute(ctx, v.backend.UnlockDoors)
}

// StartClimate starts remote climate control with the given settings and
// waits for completion.
func (v *Vehicle) StartClimate(ctx context.Context, settings ClimateSettings) error {
	handle, err := v.backend.StartClimate(ctx, v.token, settings)
	if err != nil {
		return err
	}
	return v.await(ctx, handle)
}

// StopClimate stops remote climate control and waits for completion.
func (v *Vehicle) StopClimate(ctx context.Context) error {
	return v.execute(ctx, v.backend.StopClimate)
}

// StartCharge starts charging and waits for completion.
func (v *Vehicle) StartCharge(ctx context.Context) error {
	return v.execute(ctx, v.backend.StartCharge)
}

// StopCharge stops charging and waits for completion.
func (v *Vehicle) StopCharge(ctx context.Context) error {
	return v.execute(ctx, v.backend.StopCharge)
}

func (v *Vehicle) execute(ctx context.Context, issue func(context.Context, *session.Token) (protocol.ActionHandle, error)) error {
	handle, err := issue(ctx, v.token)
	if err != nil {
		return err
	}
	return v.await(ctx, handle)
}

func (v *Vehicle) await(ctx context.Context, handle protocol.ActionHandle) error {
	if handle == "" {
		return ErrNoHandle
	}
	return v.awaiter.Await(ctx, v.token, handle)
}

// Unsupported implements every Backend operation by returning
// [protocol.ErrUnsupported]. Partial backends embed it so that operations
// their vendor or region does not offer fail explicitly instead of silently
// doing nothing.
type Unsupported struct{}

func (Unsupported) Login(context.Context) (*session.Token, error) {
	return nil, protocol.ErrUnsupported
}

func (Unsupported) CachedVehicleStatus(context.Context, *session.Token) (*Status, error) {
	return nil, protocol.ErrUnsupported
}

func (Unsupported) SyncVehicleStatus(context.Context, *session.Token) error {
	return protocol.ErrUnsupported
}

func (Unsupported) LockDoors(context.Context, *session.Token) (protocol.ActionHandle, error) {
	return "", protocol.ErrUnsupported
}

func (Unsupported) UnlockDoors(context.Context, *session.Token) (protocol.ActionHandle, error) {
	return "", protocol.ErrUnsupported
}

func (Unsupported) StartClimate(context.Context, *session.Token, ClimateSettings) (protocol.ActionHandle, error) {
	return "", protocol.ErrUnsupported
}

func (Unsupported) StopClimate(context.Context, *session.Token) (protocol.ActionHandle, error) {
	return "", protocol.ErrUnsupported
}

func (Unsupported) StartCharge(context.Context, *session.Token) (protocol.ActionHandle, error) {
	return "", protocol.ErrUnsupported
}

func (Unsupported) StopCharge(context.Context, *session.Token) (protocol.ActionHandle, error) {
	return "", protocol.ErrUnsupported
}

func (Unsupported) ActionStatus(context.Context, *session.Token, protocol.ActionHandle) (map[string]int, error) {
	return nil, protocol.ErrUnsupported
}
