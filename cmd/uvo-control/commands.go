package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uvolabs/owner-command/pkg/cli"
	"github.com/uvolabs/owner-command/pkg/geocode"
	"github.com/uvolabs/owner-command/pkg/vehicle"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrInvalidTemp     = errors.New("invalid temperature")
	ErrInvalidOption   = errors.New("invalid climate option")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error

type Command struct {
	help            string
	requiresVehicle bool // False for commands that only touch local credential storage
	args            []Argument
	optional        []Argument
	handler         Handler
}

// ParseTemperature converts strings like "72", "72F", or "22C" into degrees
// Fahrenheit, the unit the backend expects. Unqualified values are taken as
// Fahrenheit.
func ParseTemperature(s string) (float64, error) {
	value := s
	unit := "F"
	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'c', 'C':
			unit = "C"
			value = s[:len(s)-1]
		case 'f', 'F':
			value = s[:len(s)-1]
		}
	}
	degrees, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: format as 72F or 22C", ErrInvalidTemp)
	}
	if unit == "C" {
		degrees = degrees*9.0/5.0 + 32.0
	}
	if degrees < 40 || degrees > 100 {
		return 0, fmt.Errorf("%w: out of supported range", ErrInvalidTemp)
	}
	return degrees, nil
}

// ParseClimateOptions interprets a comma-separated option list for
// climate-on: "defrost" turns on the windshield defroster, "heat" turns on
// rear window, side mirror, and steering wheel heating, and "no-ac" starts
// the vehicle without running the HVAC.
func ParseClimateOptions(s string) (defrost, heat, climate bool, err error) {
	climate = true
	if s == "" {
		return
	}
	for _, option := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(option)) {
		case "defrost":
			defrost = true
		case "heat":
			heat = true
		case "no-ac":
			climate = false
		default:
			return false, false, false, fmt.Errorf("%w: %q", ErrInvalidOption, option)
		}
	}
	return
}

func formatDoor(name string, open *bool) string {
	if open == nil {
		return fmt.Sprintf("  %-16s unknown", name)
	}
	if *open {
		return fmt.Sprintf("  %-16s open", name)
	}
	return fmt.Sprintf("  %-16s closed", name)
}

func printStatus(status *vehicle.Status) {
	if status.SyncedAt != nil {
		fmt.Printf("Last synced: %s\n", status.SyncedAt.Local().Format(time.RFC1123))
	}
	if status.Odometer != nil {
		fmt.Printf("Odometer: %.1f mi\n", status.Odometer.Value)
	}
	if status.Doors != nil {
		fmt.Println("Doors:")
		fmt.Println(formatDoor("front left", status.Doors.FrontLeft))
		fmt.Println(formatDoor("front right", status.Doors.FrontRight))
		fmt.Println(formatDoor("rear left", status.Doors.RearLeft))
		fmt.Println(formatDoor("rear right", status.Doors.RearRight))
		fmt.Println(formatDoor("trunk", status.Doors.Trunk))
		fmt.Println(formatDoor("hood", status.Doors.Hood))
	}
	if status.TirePressureWarning != nil {
		if *status.TirePressureWarning {
			fmt.Println("Tire pressure: WARNING")
		} else {
			fmt.Println("Tire pressure: ok")
		}
	}
	if status.Climate != nil {
		if status.Climate.Active != nil {
			fmt.Printf("Climate active: %v\n", *status.Climate.Active)
		}
		if status.Climate.TargetTemperature != nil {
			fmt.Printf("Target temperature: %.0f\n", status.Climate.TargetTemperature.Value)
		}
	}
	if status.Location != nil {
		fmt.Printf("Location: %.5f, %.5f\n", status.Location.Latitude, status.Location.Longitude)
	}
}

func execute(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, ok := commands[args[0]]
	if !ok {
		return ErrUnknownCommand
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, config, car, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var commands = map[string]*Command{
	"status": &Command{
		help:            "Show the backend's cached vehicle status",
		requiresVehicle: true,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			status, err := car.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(status)
			return nil
		},
	},
	"sync": &Command{
		help:            "Ask the backend to refresh its data from the vehicle",
		requiresVehicle: true,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			return car.Sync(ctx)
		},
	},
	"lock": &Command{
		help:            "Lock vehicle doors",
		requiresVehicle: true,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			return car.Lock(ctx)
		},
	},
	"unlock": &Command{
		help:            "Unlock vehicle doors",
		requiresVehicle: true,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			return car.Unlock(ctx)
		},
	},
	"climate-on": &Command{
		help:            "Start the vehicle with climate control",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "TEMP", help: "Target temperature (e.g., 72F or 22C; defaults to Fahrenheit)"},
		},
		optional: []Argument{
			Argument{name: "DURATION", help: "How long to run (e.g., 10m; default 10m)"},
			Argument{name: "OPTIONS", help: "Comma-separated: defrost, heat, no-ac"},
		},
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			degrees, err := ParseTemperature(args["TEMP"])
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			duration := 10 * time.Minute
			if arg, ok := args["DURATION"]; ok {
				duration, err = time.ParseDuration(arg)
				if err != nil || duration <= 0 {
					return fmt.Errorf("%w: invalid duration %q", ErrCommandLineArgs, arg)
				}
			}
			defrost, heat, climate, err := ParseClimateOptions(args["OPTIONS"])
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			return car.StartClimate(ctx, vehicle.ClimateSettings{
				TargetTemperature: degrees,
				Duration:          duration,
				Defrost:           defrost,
				Climate:           climate,
				Heating:           heat,
			})
		},
	},
	"climate-off": &Command{
		help:            "Stop the vehicle and climate control",
		requiresVehicle: true,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			return car.StopClimate(ctx)
		},
	},
	"charge-on": &Command{
		help:            "Start charging",
		requiresVehicle: true,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			return car.StartCharge(ctx)
		},
	},
	"charge-off": &Command{
		help:            "Stop charging",
		requiresVehicle: true,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			return car.StopCharge(ctx)
		},
	},
	"locate": &Command{
		help:            "Show the vehicle's last reported position as an address",
		requiresVehicle: true,
		optional: []Argument{
			Argument{name: "EMAIL", help: "Contact email sent to the geocoding service"},
		},
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			status, err := car.Status(ctx)
			if err != nil {
				return err
			}
			if status.Location == nil {
				return errors.New("backend did not report a location")
			}
			address, err := geocode.NewClient(args["EMAIL"]).Reverse(ctx, status.Location.Latitude, status.Location.Longitude)
			if err != nil {
				return err
			}
			fmt.Printf("%.5f, %.5f\n%s\n", status.Location.Latitude, status.Location.Longitude, address.DisplayName)
			return nil
		},
	},
	"save-password": &Command{
		help:            "Store the account password in the system keyring",
		requiresVehicle: false,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			if config.AccountName == "" {
				return errors.New("provide a keyring entry name with -account-name or $UVO_ACCOUNT_NAME")
			}
			password, err := config.Password()
			if err != nil {
				return err
			}
			return config.SavePasswordToKeyring(password)
		},
	},
	"delete-password": &Command{
		help:            "Remove the account password from the system keyring",
		requiresVehicle: false,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			if config.AccountName == "" {
				return errors.New("provide a keyring entry name with -account-name or $UVO_ACCOUNT_NAME")
			}
			return config.DeletePassword()
		},
	},
}
