// services/hal/devices/bme280/device.go
//
// Combined temperature / humidity / pressure sensor on I²C. One physical
// read yields all three capability values; humidity is the one the vent
// controller acts on.
package bme280

import (
	"context"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"

	"ventcode-go/errcode"
	"ventcode-go/services/hal"
	"ventcode-go/types"
	"ventcode-go/x/timex"
)

const defaultPeriodMS = 10000

type device struct {
	id     string
	drv    bme280.Device
	params types.BME280Params
}

func newDevice(id string, i2c drivers.I2C, p types.BME280Params) *device {
	drv := bme280.New(i2c)
	if p.Addr != 0 {
		drv.Address = uint16(p.Addr)
	}
	if p.PeriodMS == 0 {
		p.PeriodMS = defaultPeriodMS
	}
	return &device{id: id, drv: drv, params: p}
}

func (d *device) ID() string { return d.id }

func (d *device) Capabilities() []hal.CapabilitySpec {
	info := types.Info{
		SchemaVersion: 1,
		Driver:        "bme280",
		Detail:        types.ClimateInfo{Sensor: "bme280", Addr: d.drv.Address},
	}
	name := d.params.Name
	return []hal.CapabilitySpec{
		{Domain: d.params.Domain, Kind: types.KindTemperature, Name: name, Info: info},
		{Domain: d.params.Domain, Kind: types.KindHumidity, Name: name, Info: info},
		{Domain: d.params.Domain, Kind: types.KindPressure, Name: name, Info: info},
	}
}

func (d *device) Init(context.Context) error {
	d.drv.Configure()
	if !d.drv.Connected() {
		return errcode.SensorInit
	}
	return nil
}

func (d *device) Read(_ context.Context, emit func(types.Kind, any)) error {
	now := timex.NowMs()

	tMilliC, err := d.drv.ReadTemperature()
	if err != nil {
		return errcode.SensorRead
	}
	rhHundredths, err := d.drv.ReadHumidity()
	if err != nil {
		return errcode.SensorRead
	}
	pMilliPa, err := d.drv.ReadPressure()
	if err != nil {
		return errcode.SensorRead
	}

	// milli°C → deci°C, %RH*100 passes through, milliPa → deci-hPa.
	emit(types.KindTemperature, types.TemperatureValue{DeciC: int16(tMilliC / 100), TSms: now})
	emit(types.KindHumidity, types.HumidityValue{RHx100: uint16(rhHundredths), TSms: now})
	emit(types.KindPressure, types.PressureValue{DeciHPa: uint32(pMilliPa / 10000), TSms: now})
	return nil
}

func (d *device) Control(types.Kind, string, any) (any, error) {
	return nil, errcode.Unsupported
}

func (d *device) Close() error { return nil }

func (d *device) ReadPeriod() time.Duration {
	return time.Duration(d.params.PeriodMS) * time.Millisecond
}
