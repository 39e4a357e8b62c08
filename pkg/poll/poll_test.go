package poll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/uvolabs/owner-command/mocks"
	"github.com/uvolabs/owner-command/pkg/poll"
	"github.com/uvolabs/owner-command/pkg/protocol"
	"github.com/uvolabs/owner-command/pkg/session"
)

const handle = protocol.ActionHandle("xid-test")

func testToken() *session.Token {
	tok := session.New()
	tok.Populate(session.Snapshot{SessionID: "sid", VehicleKey: "key", ValidUntil: time.Now().Add(time.Hour)})
	return tok
}

func TestAwaitCompletesWhenAllSubChecksClear(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	monitor := mocks.NewMockMonitor(ctrl)
	token := testToken()

	gomock.InOrder(
		monitor.EXPECT().ActionStatus(gomock.Any(), token, handle).Return(map[string]int{"a": 1, "b": 0}, nil),
		monitor.EXPECT().ActionStatus(gomock.Any(), token, handle).Return(map[string]int{"a": 0, "b": 0}, nil),
	)

	awaiter := &poll.Awaiter{
		Monitor:     monitor,
		GracePeriod: 30 * time.Millisecond,
		Interval:    20 * time.Millisecond,
		Timeout:     time.Second,
	}
	start := time.Now()
	if err := awaiter.Await(context.Background(), token, handle); err != nil {
		t.Fatalf("Await returned error: %s", err)
	}
	// Grace sleep precedes the first poll, and completion required two polls.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond+2*20*time.Millisecond {
		t.Errorf("Await returned after %s, before the grace period and two poll intervals", elapsed)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	monitor := mocks.NewMockMonitor(ctrl)
	token := testToken()

	monitor.EXPECT().ActionStatus(gomock.Any(), token, handle).Return(map[string]int{"door": 1}, nil).AnyTimes()

	awaiter := &poll.Awaiter{
		Monitor:     monitor,
		GracePeriod: 5 * time.Millisecond,
		Interval:    10 * time.Millisecond,
		Timeout:     60 * time.Millisecond,
	}
	err := awaiter.Await(context.Background(), token, handle)
	var timeout *protocol.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *protocol.TimeoutError, got %v", err)
	}
	if timeout.Handle != handle {
		t.Errorf("timeout reported handle %q, want %q", timeout.Handle, handle)
	}
}

func TestAwaitHonorsCallerCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	monitor := mocks.NewMockMonitor(ctrl)
	token := testToken()

	awaiter := &poll.Awaiter{
		Monitor:     monitor,
		GracePeriod: time.Minute, // cancellation must interrupt the grace sleep
		Timeout:     time.Hour,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- awaiter.Await(ctx, token, handle)
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Await leaked its sleeping goroutine after cancellation")
	}
}

func TestAwaitSurfacesMonitorErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	monitor := mocks.NewMockMonitor(ctrl)
	token := testToken()

	backendErr := &protocol.RequestError{StatusCode: 1, ErrorType: 2, ErrorCode: 9999}
	monitor.EXPECT().ActionStatus(gomock.Any(), token, handle).Return(nil, backendErr)

	awaiter := &poll.Awaiter{
		Monitor:     monitor,
		GracePeriod: time.Millisecond,
		Interval:    time.Millisecond,
		Timeout:     time.Second,
	}
	if err := awaiter.Await(context.Background(), token, handle); !errors.Is(err, backendErr) {
		t.Errorf("expected backend error to surface, got %v", err)
	}
}
