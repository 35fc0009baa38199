// services/hal/devices/hd44780/builder.go
package hd44780

import (
	"context"

	"ventcode-go/errcode"
	"ventcode-go/services/hal"
	"ventcode-go/types"
)

func init() {
	hal.RegisterBuilder("hd44780", builder{})
}

type builder struct{}

func (builder) Build(_ context.Context, in hal.BuilderInput) (hal.Device, error) {
	var p types.DisplayParams
	if err := hal.DecodeParams(in.Params, &p); err != nil {
		return nil, errcode.InvalidParams
	}

	busID := in.BusRef.ID
	if busID == "" {
		busID = "i2c0"
	}
	i2c, ok := in.Res.Plat.I2CByID(busID)
	if !ok {
		return nil, errcode.UnknownBus
	}

	return newDevice(in.ID, i2c, p), nil
}
