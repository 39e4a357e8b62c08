package kiausa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/uvolabs/owner-command/pkg/protocol"
	"github.com/uvolabs/owner-command/pkg/session"
	"github.com/uvolabs/owner-command/pkg/vehicle"
)

// Backend unit codes used by remote climate commands.
const (
	airTempUnit  = 1
	durationUnit = 4 // minutes
)

// SyncVehicleStatus asks the backend to pull fresh data from the physical
// vehicle. The backend acknowledges without a command handle; refreshed data
// becomes visible through CachedVehicleStatus once the vehicle reports in.
func (c *Connection) SyncVehicleStatus(ctx context.Context, token *session.Token) error {
	// requestType 1 would return the cached record instead of forcing a sync.
	body := map[string]int{"requestType": 0}
	_, err := c.authed(ctx, token, http.MethodPost, "rems/rvs", body)
	return err
}

// LockDoors asks the vehicle to lock and returns the command handle to poll.
func (c *Connection) LockDoors(ctx context.Context, token *session.Token) (protocol.ActionHandle, error) {
	return c.command(ctx, token, http.MethodGet, "rems/door/lock", nil)
}

// UnlockDoors asks the vehicle to unlock and returns the command handle.
func (c *Connection) UnlockDoors(ctx context.Context, token *session.Token) (protocol.ActionHandle, error) {
	return c.command(ctx, token, http.MethodGet, "rems/door/unlock", nil)
}

type climateRequest struct {
	RemoteClimate remoteClimate `json:"remoteClimate"`
}

type remoteClimate struct {
	AirCtrl          bool             `json:"airCtrl"`
	AirTemp          airTemp          `json:"airTemp"`
	Defrost          bool             `json:"defrost"`
	HeatingAccessory heatingAccessory `json:"heatingAccessory"`
	IgnitionDuration valueWithUnit    `json:"ignitionOnDuration"`
}

type airTemp struct {
	Unit  int    `json:"unit"`
	Value string `json:"value"`
}

// The backend encodes accessory heating as 0/1 integers, not booleans.
type heatingAccessory struct {
	RearWindow    int `json:"rearWindow"`
	SideMirror    int `json:"sideMirror"`
	SteeringWheel int `json:"steeringWheel"`
}

type valueWithUnit struct {
	Unit  int `json:"unit"`
	Value int `json:"value"`
}

// StartClimate starts the vehicle with the given climate settings and returns
// the command handle.
func (c *Connection) StartClimate(ctx context.Context, token *session.Token, settings vehicle.ClimateSettings) (protocol.ActionHandle, error) {
	heating := 0
	if settings.Heating {
		heating = 1
	}
	body := climateRequest{
		RemoteClimate: remoteClimate{
			AirCtrl: settings.Climate,
			AirTemp: airTemp{
				Unit:  airTempUnit,
				Value: strconv.FormatFloat(settings.TargetTemperature, 'f', -1, 64),
			},
			Defrost: settings.Defrost,
			HeatingAccessory: heatingAccessory{
				RearWindow:    heating,
				SideMirror:    heating,
				SteeringWheel: heating,
			},
			IgnitionDuration: valueWithUnit{
				Unit:  durationUnit,
				Value: int(settings.Duration.Minutes()),
			},
		},
	}
	return c.command(ctx, token, http.MethodPost, "rems/start", &body)
}

// StopClimate stops remote climate control and returns the command handle.
func (c *Connection) StopClimate(ctx context.Context, token *session.Token) (protocol.ActionHandle, error) {
	return c.command(ctx, token, http.MethodGet, "rems/stop", nil)
}

// StartCharge starts charging to full and returns the command handle.
func (c *Connection) StartCharge(ctx context.Context, token *session.Token) (protocol.ActionHandle, error) {
	body := map[string]int{"chargeRatio": 100}
	return c.command(ctx, token, http.MethodPost, "evc/charge", body)
}

// StopCharge cancels charging and returns the command handle.
func (c *Connection) StopCharge(ctx context.Context, token *session.Token) (protocol.ActionHandle, error) {
	return c.command(ctx, token, http.MethodGet, "evc/cancel", nil)
}

func (c *Connection) command(ctx context.Context, token *session.Token, method, path string, body any) (protocol.ActionHandle, error) {
	response, err := c.authed(ctx, token, method, path, body)
	if err != nil {
		return "", err
	}
	return response.ActionHandle(), nil
}

type actionStatusRequest struct {
	XID string `json:"xid"`
}

// ActionStatus reports the per-sub-check completion codes for an in-flight
// command. All-zero codes mean the command finished; the poller interprets
// the map.
func (c *Connection) ActionStatus(ctx context.Context, token *session.Token, handle protocol.ActionHandle) (map[string]int, error) {
	body := actionStatusRequest{XID: string(handle)}
	response, err := c.authed(ctx, token, http.MethodPost, "cmm/gts", &body)
	if err != nil {
		return nil, err
	}
	var codes map[string]int
	if err := json.Unmarshal(response.Payload, &codes); err != nil {
		return nil, fmt.Errorf("decoding command status: %w", err)
	}
	return codes, nil
}
