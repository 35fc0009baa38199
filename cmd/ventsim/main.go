//go:build !rp2040 && !rp2350

// ventsim runs the full service stack on the host with a scripted climate
// profile instead of a physical sensor. Useful for watching the controller
// walk the damper through a humidity swing without hardware attached.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"time"

	"ventcode-go/bus"
	"ventcode-go/services/hal"
	"ventcode-go/services/hal/platform"
	"ventcode-go/services/vent"
	"ventcode-go/types"
	"ventcode-go/x/timex"

	_ "ventcode-go/services/hal/devices/stepper"
)

// One pass through a humid afternoon: dry, shower spike, slow recovery.
var profile = []uint16{5000, 5210, 5980, 6540, 7330, 8120, 8020, 7650, 6900, 6100, 5400, 4800}

func main() {
	hal.RegisterBuilder("sim-climate", simBuilder{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b := bus.NewBus(32)
	plat := platform.DefaultPlatform()

	go hal.Run(ctx, b.NewConnection("hal"), plat)
	go vent.Run(ctx, b.NewConnection("vent"))

	ui := b.NewConnection("ui")
	valSub := ui.Subscribe(bus.T("hal", "cap", "env", "+", "+", "value"))
	ventSub := ui.Subscribe(bus.T("vent", "state"))
	moveSub := ui.Subscribe(bus.T("hal", "cap", "io", "motor", "+", "control", "move"))
	defer ui.Disconnect()

	ui.Publish(ui.NewMessage(bus.T("config", "hal"), types.HALConfig{
		Devices: []types.HALDevice{
			{ID: "climate", Type: "sim-climate"},
			{ID: "damper", Type: "stepper", Params: types.StepperParams{
				Pins: [4]int{2, 3, 4, 5}, StepsPerRev: 2048, RPM: 10,
			}},
		},
	}, true))

	for {
		select {
		case <-ctx.Done():
			println("[sim] net motor steps:", netSteps(plat))
			return
		case m := <-valSub.Channel():
			if hv, ok := m.Payload.(types.HumidityValue); ok {
				println("[sim] humidity", fmtPct(hv.RHx100))
			}
		case m := <-moveSub.Channel():
			if mv, ok := m.Payload.(types.MotorMove); ok {
				println("[sim] damper move", strconv.Itoa(int(mv.Steps)), "steps")
			}
		case m := <-ventSub.Channel():
			if st, ok := m.Payload.(types.VentState); ok && st.Seeded {
				println("[sim] vent state: quantized", st.Quantized,
					"position", st.Position, "power", st.Power)
			}
		}
	}
}

func netSteps(p *platform.HostPlatform) int {
	var n int32
	for _, m := range p.Motors() {
		n += m.NetSteps()
	}
	return int(n)
}

func fmtPct(rhX100 uint16) string {
	return strconv.Itoa(int(rhX100)/100) + "." +
		strconv.Itoa(int(rhX100)%100/10) + "%"
}

// -----------------------------------------------------------------------------
// Scripted climate device
// -----------------------------------------------------------------------------

type simBuilder struct{}

func (simBuilder) Build(_ context.Context, in hal.BuilderInput) (hal.Device, error) {
	return &simClimate{id: in.ID}, nil
}

type simClimate struct {
	id  string
	idx int
}

func (d *simClimate) ID() string { return d.id }

func (d *simClimate) Capabilities() []hal.CapabilitySpec {
	info := types.Info{SchemaVersion: 1, Driver: "sim"}
	return []hal.CapabilitySpec{
		{Kind: types.KindTemperature, Info: info},
		{Kind: types.KindHumidity, Info: info},
		{Kind: types.KindPressure, Info: info},
	}
}

func (d *simClimate) Init(context.Context) error { return nil }

func (d *simClimate) Read(_ context.Context, emit func(types.Kind, any)) error {
	now := timex.NowMs()
	rh := profile[d.idx%len(profile)]
	d.idx++
	emit(types.KindTemperature, types.TemperatureValue{DeciC: 215, TSms: now})
	emit(types.KindHumidity, types.HumidityValue{RHx100: rh, TSms: now})
	emit(types.KindPressure, types.PressureValue{DeciHPa: 10132, TSms: now})
	return nil
}

func (d *simClimate) Control(types.Kind, string, any) (any, error) {
	return nil, nil
}

func (d *simClimate) Close() error { return nil }

func (d *simClimate) ReadPeriod() time.Duration { return 500 * time.Millisecond }
