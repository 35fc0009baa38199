// services/hal/devices/stepper/device.go
//
// Unipolar stepper behind a 4-pin driver board. Moves are relative step
// counts with no position feedback; the caller owns absolute positioning.
package stepper

import (
	"context"

	"ventcode-go/errcode"
	"ventcode-go/services/hal"
	"ventcode-go/types"
	"ventcode-go/x/timex"
)

type device struct {
	id     string
	motor  hal.Motor
	params types.StepperParams
	pub    hal.EventEmitter
}

func newDevice(id string, m hal.Motor, p types.StepperParams, pub hal.EventEmitter) *device {
	return &device{id: id, motor: m, params: p, pub: pub}
}

func (d *device) addr() hal.CapAddr {
	domain := d.params.Domain
	if domain == "" {
		domain = "io"
	}
	name := d.params.Name
	if name == "" {
		name = d.id
	}
	return hal.CapAddr{Domain: domain, Kind: string(types.KindMotor), Name: name}
}

func (d *device) ID() string { return d.id }

func (d *device) Capabilities() []hal.CapabilitySpec {
	return []hal.CapabilitySpec{{
		Domain: d.params.Domain,
		Kind:   types.KindMotor,
		Name:   d.params.Name,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "easystepper",
			Detail: types.MotorInfo{
				Driver:      "easystepper",
				StepsPerRev: d.params.StepsPerRev,
				RPM:         d.params.RPM,
			},
		},
	}}
}

func (d *device) Init(context.Context) error { return nil }

func (d *device) Read(context.Context, func(types.Kind, any)) error {
	return nil
}

func (d *device) Control(_ types.Kind, verb string, payload any) (any, error) {
	switch verb {
	case "move":
		var mv types.MotorMove
		if err := hal.DecodeParams(payload, &mv); err != nil {
			return nil, errcode.InvalidPayload
		}
		// Zero-length moves are accepted and acknowledged without touching
		// the coils.
		if mv.Steps != 0 {
			d.motor.Move(mv.Steps)
			d.motor.Off()
		}
		moved := types.MotorMoved{Steps: mv.Steps, TSms: timex.NowMs()}
		if d.pub != nil {
			d.pub.Emit(hal.Event{Addr: d.addr(), Payload: moved, TSms: moved.TSms, IsEvent: true})
		}
		return moved, nil
	case "off":
		d.motor.Off()
		return nil, nil
	default:
		return nil, errcode.Unsupported
	}
}

func (d *device) Close() error {
	d.motor.Off()
	return nil
}
