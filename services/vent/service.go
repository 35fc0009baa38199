// services/vent/service.go
package vent

import (
	"context"
	"encoding/json"

	"ventcode-go/bus"
	"ventcode-go/types"
	"ventcode-go/x/strx"
	"ventcode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run starts the ventilation controller on this connection and blocks until
// ctx is cancelled. Cycles are driven by humidity values arriving from the
// HAL's sensor poller; the service keeps no timer of its own.
func Run(ctx context.Context, conn *bus.Connection) {
	s := &service{
		conn:   conn,
		tuning: Defaults(),
	}
	s.loop(ctx)
}

type service struct {
	conn   *bus.Connection
	tuning types.VentTuning
	state  State

	// Latest companion readings for the readout; humidity drives the cycle.
	lastTemp  types.TemperatureValue
	lastPress types.PressureValue
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "vent"))
	envSub := s.conn.Subscribe(bus.T("hal", "cap", "env", "+", "+", "value"))
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(envSub)

	s.publishState()

	for {
		select {
		case <-ctx.Done():
			println("[vent] stopping")
			return

		case msg := <-cfgSub.Channel():
			var t types.VentTuning
			if err := decodeJSON(msg.Payload, &t); err != nil {
				println("[vent] config decode failed:", err.Error())
				continue
			}
			s.tuning = withDefaults(t)

		case msg := <-envSub.Channel():
			// hal/cap/env/<kind>/<name>/value
			if msg.Topic.Len() < 6 {
				continue
			}
			kind, _ := msg.Topic.At(3).(string)
			switch types.Kind(kind) {
			case types.KindTemperature:
				if v, ok := msg.Payload.(types.TemperatureValue); ok {
					s.lastTemp = v
				}
			case types.KindPressure:
				if v, ok := msg.Payload.(types.PressureValue); ok {
					s.lastPress = v
				}
			case types.KindHumidity:
				if v, ok := msg.Payload.(types.HumidityValue); ok {
					s.cycle(v)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------
// One cycle
// -----------------------------------------------------------------------------

func (s *service) cycle(hv types.HumidityValue) {
	cmd, next := Plan(int(hv.RHx100), s.state, s.tuning)
	seeded := !s.state.Seeded && next.Seeded
	s.state = next

	if cmd.ClearDisplay {
		s.control(types.KindDisplay, s.displayName(), "clear", nil)
	}
	if cmd.Render {
		// A zero-length move is still issued; the device no-ops it.
		s.control(types.KindMotor, s.motorName(), "move", types.MotorMove{Steps: cmd.MotorSteps})
		s.control(types.KindDisplay, s.displayName(), "render", types.DisplayFrame{
			DeciC:   s.lastTemp.DeciC,
			RHx100:  hv.RHx100,
			DeciHPa: s.lastPress.DeciHPa,
			Power:   cmd.Power,
		})
	}
	if seeded {
		println("[vent] seeded at", s.state.Quantized, "%RH")
	}

	s.publishState()
}

func (s *service) publishState() {
	t := s.tuning
	st := types.VentState{
		Quantized: s.state.Quantized,
		Seeded:    s.state.Seeded,
		TSms:      timex.NowMs(),
	}
	if s.state.Seeded {
		if p := PositionOf(s.state.Quantized, t); p.Valid {
			st.Position = p.Index
		}
		st.Power = PowerOf(s.state.Quantized, t)
	}
	s.conn.Publish(s.conn.NewMessage(bus.T("vent", "state"), st, true))
}

func (s *service) control(kind types.Kind, name, verb string, payload any) {
	topic := bus.T("hal", "cap", "io", string(kind), name, "control", verb)
	s.conn.Publish(s.conn.NewMessage(topic, payload, false))
}

func (s *service) motorName() string   { return strx.Coalesce(s.tuning.Motor, "damper") }
func (s *service) displayName() string { return strx.Coalesce(s.tuning.Display, "panel") }

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case T:
		*dst = v
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
