// services/hal/devices/stepper/builder.go
package stepper

import (
	"context"

	"ventcode-go/errcode"
	"ventcode-go/services/hal"
	"ventcode-go/types"
)

func init() {
	hal.RegisterBuilder("stepper", builder{})
}

type builder struct{}

func (builder) Build(_ context.Context, in hal.BuilderInput) (hal.Device, error) {
	var p types.StepperParams
	if err := hal.DecodeParams(in.Params, &p); err != nil {
		return nil, errcode.InvalidParams
	}
	if p.StepsPerRev == 0 || p.RPM == 0 {
		return nil, errcode.InvalidParams
	}

	// Speed is fixed at construction; there is no runtime speed verb.
	m, err := in.Res.Plat.NewMotor(p.Pins, p.StepsPerRev, p.RPM)
	if err != nil {
		return nil, err
	}
	return newDevice(in.ID, m, p, in.Res.Pub), nil
}
