// services/hal/platform/platform_rp2.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/easystepper"

	"ventcode-go/errcode"
	"ventcode-go/services/hal"
)

// DefaultPlatform configures i2c0 and i2c1 with board-default pins at 400 kHz
// and builds easystepper motors on demand. Matches Pico / Pico 2 GP numbering.
func DefaultPlatform() *RP2Platform {
	p := &RP2Platform{buses: make(map[string]drivers.I2C)}

	b0 := machine.I2C0
	_ = b0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	p.buses["i2c0"] = b0

	b1 := machine.I2C1
	_ = b1.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C1_SDA_PIN,
		SCL:       machine.I2C1_SCL_PIN,
	})
	p.buses["i2c1"] = b1

	return p
}

type RP2Platform struct {
	buses map[string]drivers.I2C
}

func (p *RP2Platform) I2CByID(id string) (drivers.I2C, bool) {
	b, ok := p.buses[id]
	return b, ok
}

func (p *RP2Platform) NewMotor(pins [4]int, stepsPerRev, rpm uint32) (hal.Motor, error) {
	for _, n := range pins {
		// Constrain to RP2's user GPIOs (GP0..GP28).
		if n < 0 || n > 28 {
			return nil, errcode.InvalidParams
		}
	}
	dev, err := easystepper.New(easystepper.DeviceConfig{
		Pin1:      machine.Pin(pins[0]),
		Pin2:      machine.Pin(pins[1]),
		Pin3:      machine.Pin(pins[2]),
		Pin4:      machine.Pin(pins[3]),
		StepCount: stepsPerRev,
		RPM:       rpm,
	})
	if err != nil {
		return nil, errcode.MotorInit
	}
	dev.Configure()
	return rp2Motor{dev}, nil
}

type rp2Motor struct {
	dev *easystepper.Device
}

func (m rp2Motor) Move(steps int32) { m.dev.Move(steps) }
func (m rp2Motor) Off()             { m.dev.Off() }
