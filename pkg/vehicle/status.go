package vehicle

import (
	"encoding/json"
	"time"
)

// Temperature units as reported by backends.
const (
	TempUnitCelsius    = 0
	TempUnitFahrenheit = 1
)

// Temperature is a target or measured temperature with its backend unit code.
type Temperature struct {
	Value float64
	Unit  int
}

// Odometer is the vehicle's mileage with its backend unit code.
type Odometer struct {
	Value float64
	Unit  int
}

// Doors reports per-door open state. A nil field means the backend did not
// report that door; callers must not treat absence as closed.
type Doors struct {
	FrontLeft  *bool
	FrontRight *bool
	RearLeft   *bool
	RearRight  *bool
	Trunk      *bool
	Hood       *bool
}

// Climate reports HVAC state. Nil fields mean the backend did not report the
// value.
type Climate struct {
	Active            *bool
	Defrost           *bool
	RearWindowHeat    *bool
	SideMirrorHeat    *bool
	SteeringWheelHeat *bool
	TargetTemperature *Temperature
}

// Location is the vehicle's last reported position. Raw preserves the
// backend's location document verbatim for fields the normalized form drops.
type Location struct {
	Latitude  float64
	Longitude float64
	Raw       json.RawMessage
}

// Status is the normalized, backend-independent view of a vehicle. Every
// field is a pointer or nil-able so that "the backend did not report this" is
// distinguishable from a zero value.
type Status struct {
	Odometer            *Odometer
	Doors               *Doors
	TirePressureWarning *bool
	Climate             *Climate
	Location            *Location

	// SyncedAt is when the physical vehicle last reported to the backend,
	// in UTC. Nil when the backend omits it.
	SyncedAt *time.Time
}

// ClimateSettings configures a remote climate start.
type ClimateSettings struct {
	// TargetTemperature in the backend's native unit.
	TargetTemperature float64

	// Duration the engine or HVAC stays on. Zero lets the backend pick its
	// default.
	Duration time.Duration

	// Defrost turns on the front windshield defroster.
	Defrost bool

	// Climate runs the HVAC; false starts the vehicle without air.
	Climate bool

	// Heating turns on rear window and side mirror heating.
	Heating bool
}
