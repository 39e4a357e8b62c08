// Package poll waits for asynchronous vehicle commands to complete. The
// backend executes lock, climate, and charge commands out of band and exposes
// a command-status endpoint keyed by the command's handle; an Awaiter sleeps
// through the vendor's propagation delay and then polls that endpoint until
// every sub-check reports success or the configured bound expires.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"

	"github.com/uvolabs/owner-command/internal/log"
	"github.com/uvolabs/owner-command/pkg/protocol"
	"github.com/uvolabs/owner-command/pkg/session"
)

// Poll states and the events that move between them.
const (
	StateSubmitted = "submitted"
	StatePolling   = "polling"
	StateCompleted = "completed"
	StateTimedOut  = "timed_out"

	eventPoll     = "poll"
	eventComplete = "complete"
	eventExpire   = "expire"
)

// Defaults. The backend typically needs a few seconds before a freshly issued
// command shows up on the status endpoint at all, hence the grace period.
const (
	DefaultGracePeriod = 15 * time.Second
	DefaultInterval    = 10 * time.Second
	DefaultTimeout     = 5 * time.Minute
)

// Monitor fetches the status of an in-flight command. The returned map pairs
// each vendor sub-check with a numeric code; zero means that sub-check has
// completed.
type Monitor interface {
	ActionStatus(ctx context.Context, token *session.Token, handle protocol.ActionHandle) (map[string]int, error)
}

// Awaiter polls a Monitor until a command completes. The zero value of each
// duration field selects the corresponding default. An Awaiter is stateless
// and safe for concurrent use; each Await call runs its own state machine, so
// one vehicle's slow command cannot stall another's.
type Awaiter struct {
	Monitor     Monitor
	GracePeriod time.Duration
	Interval    time.Duration
	Timeout     time.Duration
}

// Await blocks until the backend reports handle complete, the configured
// timeout elapses, or ctx is canceled. A nil return means every sub-check
// reported success. An exhausted bound returns *protocol.TimeoutError, which
// is distinct from rejection: the vendor never confirmed, but the command may
// still complete. Cancellation via ctx interrupts any sleep immediately.
func (a *Awaiter) Await(ctx context.Context, token *session.Token, handle protocol.ActionHandle) error {
	timeout := a.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	parent := ctx
	ctx, cancel := context.WithDeadline(parent, start.Add(timeout))
	defer cancel()

	machine := newMachine(handle)
	err := a.run(ctx, machine, token, handle)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		// Our own deadline fired, not the caller's.
		_ = machine.Event(context.Background(), eventExpire)
		return &protocol.TimeoutError{Handle: handle, Elapsed: time.Since(start)}
	}
	return err
}

func (a *Awaiter) run(ctx context.Context, machine *fsm.FSM, token *session.Token, handle protocol.ActionHandle) error {
	grace := a.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	interval := a.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	if err := sleep(ctx, grace); err != nil {
		return err
	}
	if err := machine.Event(ctx, eventPoll); err != nil {
		return err
	}
	for {
		if err := sleep(ctx, interval); err != nil {
			return err
		}
		codes, err := a.Monitor.ActionStatus(ctx, token, handle)
		if err != nil {
			return err
		}
		if complete(codes) {
			return machine.Event(ctx, eventComplete)
		}
		log.Debug("Command %s still pending: %v", handle, codes)
	}
}

// complete reports whether every sub-check has reached the success code.
func complete(codes map[string]int) bool {
	for _, code := range codes {
		if code != 0 {
			return false
		}
	}
	return true
}

func newMachine(handle protocol.ActionHandle) *fsm.FSM {
	return fsm.NewFSM(
		StateSubmitted,
		fsm.Events{
			{Name: eventPoll, Src: []string{StateSubmitted}, Dst: StatePolling},
			{Name: eventComplete, Src: []string{StatePolling}, Dst: StateCompleted},
			{Name: eventExpire, Src: []string{StateSubmitted, StatePolling}, Dst: StateTimedOut},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				log.Debug("Command %s: %s -> %s", handle, e.Src, e.Dst)
			},
		},
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
