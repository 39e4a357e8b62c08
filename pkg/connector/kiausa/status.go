package kiausa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/uvolabs/owner-command/pkg/session"
	"github.com/uvolabs/owner-command/pkg/vehicle"
)

// syncDateFormat is the backend's compact UTC timestamp layout.
const syncDateFormat = "20060102150405"

// Odometer unit code the backend uses for miles.
const odometerUnitMiles = 3

type statusRequest struct {
	VehicleConfigReq vehicleConfigReq `json:"vehicleConfigReq"`
	VehicleInfoReq   vehicleInfoReq   `json:"vehicleInfoReq"`
	VINKey           []string         `json:"vinKey"`
}

// BindVehicleKey lets the session guard rewrite the vehicle key reference
// after a re-authentication, so the retried request does not carry the stale
// key.
func (r *statusRequest) BindVehicleKey(key string) {
	r.VINKey = []string{key}
}

// The flag values mirror the vendor app's composite status request: fetch the
// vehicle record, status, and location, skip weather and marketing cards.
type vehicleConfigReq struct {
	AirTempRange      string `json:"airTempRange"`
	Maintenance       string `json:"maintenance"`
	SeatHeatCoolOpt   string `json:"seatHeatCoolOption"`
	Vehicle           string `json:"vehicle"`
	VehicleFeature    string `json:"vehicleFeature"`
}

type vehicleInfoReq struct {
	DrivingActivity string `json:"drivingActivty"`
	DTC             string `json:"dtc"`
	Enrollment      string `json:"enrollment"`
	FunctionalCards string `json:"functionalCards"`
	Location        string `json:"location"`
	VehicleStatus   string `json:"vehicleStatus"`
	Weather         string `json:"weather"`
}

func newStatusRequest(vehicleKey string) *statusRequest {
	return &statusRequest{
		VehicleConfigReq: vehicleConfigReq{
			AirTempRange:    "0",
			Maintenance:     "0",
			SeatHeatCoolOpt: "0",
			Vehicle:         "1",
			VehicleFeature:  "0",
		},
		VehicleInfoReq: vehicleInfoReq{
			DrivingActivity: "0",
			DTC:             "1",
			Enrollment:      "1",
			FunctionalCards: "0",
			Location:        "1",
			VehicleStatus:   "1",
			Weather:         "0",
		},
		VINKey: []string{vehicleKey},
	}
}

// looseBool tolerates the backend's mixed encoding of boolean fields, which
// appear as JSON booleans in some documents and 0/1 numbers in others.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return fmt.Errorf("cannot parse %q as boolean flag", data)
	}
	return nil
}

type statusPayload struct {
	VehicleInfoList []vehicleInfo `json:"vehicleInfoList"`
}

type vehicleInfo struct {
	VehicleConfig struct {
		VehicleDetail struct {
			Vehicle struct {
				Mileage json.Number `json:"mileage"`
			} `json:"vehicle"`
		} `json:"vehicleDetail"`
	} `json:"vehicleConfig"`
	LastVehicleInfo struct {
		VehicleStatusRpt struct {
			VehicleStatus vendorStatus `json:"vehicleStatus"`
		} `json:"vehicleStatusRpt"`
		Location json.RawMessage `json:"location"`
	} `json:"lastVehicleInfo"`
}

type vendorStatus struct {
	SyncDate *struct {
		UTC string `json:"utc"`
	} `json:"syncDate"`
	DoorStatus *struct {
		FrontLeft  *looseBool `json:"frontLeft"`
		FrontRight *looseBool `json:"frontRight"`
		BackLeft   *looseBool `json:"backLeft"`
		BackRight  *looseBool `json:"backRight"`
		Trunk      *looseBool `json:"trunk"`
		Hood       *looseBool `json:"hood"`
	} `json:"doorStatus"`
	TirePressure *struct {
		All *looseBool `json:"all"`
	} `json:"tirePressure"`
	Climate *struct {
		AirCtrl *looseBool `json:"airCtrl"`
		Defrost *looseBool `json:"defrost"`
		AirTemp *struct {
			Value json.Number `json:"value"`
			Unit  int         `json:"unit"`
		} `json:"airTemp"`
		HeatingAccessory *struct {
			RearWindow    *looseBool `json:"rearWindow"`
			SideMirror    *looseBool `json:"sideMirror"`
			SteeringWheel *looseBool `json:"steeringWheel"`
		} `json:"heatingAccessory"`
	} `json:"climate"`
}

type vendorLocation struct {
	Coord *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
}

// CachedVehicleStatus fetches the backend's composite vehicle record and
// normalizes it. Fields the backend omits stay nil in the result; absence is
// never mapped to a zero value.
func (c *Connection) CachedVehicleStatus(ctx context.Context, token *session.Token) (*vehicle.Status, error) {
	body := newStatusRequest(token.VehicleKey())
	response, err := c.authed(ctx, token, http.MethodPost, "cmm/gvi", body)
	if err != nil {
		return nil, err
	}
	var payload statusPayload
	if err := json.Unmarshal(response.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decoding vehicle status: %w", err)
	}
	if len(payload.VehicleInfoList) == 0 {
		return nil, fmt.Errorf("backend returned no vehicle info for key")
	}
	return normalize(&payload.VehicleInfoList[0]), nil
}

func normalize(info *vehicleInfo) *vehicle.Status {
	status := &vehicle.Status{}

	if miles, err := info.VehicleConfig.VehicleDetail.Vehicle.Mileage.Float64(); err == nil {
		status.Odometer = &vehicle.Odometer{Value: miles, Unit: odometerUnitMiles}
	}

	report := &info.LastVehicleInfo.VehicleStatusRpt.VehicleStatus
	if report.SyncDate != nil {
		if synced, err := time.ParseInLocation(syncDateFormat, report.SyncDate.UTC, time.UTC); err == nil {
			status.SyncedAt = &synced
		}
	}
	if doors := report.DoorStatus; doors != nil {
		status.Doors = &vehicle.Doors{
			FrontLeft:  boolValue(doors.FrontLeft),
			FrontRight: boolValue(doors.FrontRight),
			RearLeft:   boolValue(doors.BackLeft),
			RearRight:  boolValue(doors.BackRight),
			Trunk:      boolValue(doors.Trunk),
			Hood:       boolValue(doors.Hood),
		}
	}
	if report.TirePressure != nil {
		status.TirePressureWarning = boolValue(report.TirePressure.All)
	}
	if climate := report.Climate; climate != nil {
		normalized := &vehicle.Climate{
			Active:  boolValue(climate.AirCtrl),
			Defrost: boolValue(climate.Defrost),
		}
		if heating := climate.HeatingAccessory; heating != nil {
			normalized.RearWindowHeat = boolValue(heating.RearWindow)
			normalized.SideMirrorHeat = boolValue(heating.SideMirror)
			normalized.SteeringWheelHeat = boolValue(heating.SteeringWheel)
		}
		if climate.AirTemp != nil {
			if value, err := climate.AirTemp.Value.Float64(); err == nil {
				normalized.TargetTemperature = &vehicle.Temperature{Value: value, Unit: climate.AirTemp.Unit}
			}
		}
		status.Climate = normalized
	}
	if raw := info.LastVehicleInfo.Location; len(raw) > 0 {
		var loc vendorLocation
		if err := json.Unmarshal(raw, &loc); err == nil && loc.Coord != nil {
			status.Location = &vehicle.Location{
				Latitude:  loc.Coord.Lat,
				Longitude: loc.Coord.Lon,
				Raw:       raw,
			}
		}
	}
	return status
}

func boolValue(b *looseBool) *bool {
	if b == nil {
		return nil
	}
	value := bool(*b)
	return &value
}
