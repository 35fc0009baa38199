// services/vent/cycle.go
package vent

import "ventcode-go/types"

// State is the single value carried between control cycles: the quantized
// humidity the actuator was last positioned for. It must track what the
// damper was actually commanded to, so invalid readings leave it untouched.
type State struct {
	Seeded    bool
	Quantized int
}

// Command is the side-effect plan for one cycle. MotorSteps is a relative
// move in elementary motor steps (the actuator has no absolute positioning);
// a zero-step move on a steady cycle is still issued, as a no-op.
type Command struct {
	MotorSteps   int32
	Power        int
	Render       bool // refresh the readout this cycle
	ClearDisplay bool // first (seeding) cycle only
}

// Plan computes one control cycle as a pure function of the latest humidity
// reading (hundredths of %RH, negative = unusable) and the carried state.
//
// The first usable reading only seeds the state: the damper's physical
// position is unknown at boot, so it is adopted as position zero reference
// without actuation. Every later cycle moves the damper by the position
// delta and reports the power level. Unusable readings plan nothing and
// preserve the state, so the damper holds its last commanded position.
func Plan(rhX100 int, s State, t types.VentTuning) (Command, State) {
	t = withDefaults(t)
	if rhX100 < 0 {
		// Unusable reading: hold position, carry state unchanged.
		return Command{}, s
	}
	q := Quantize(rhX100)
	cur := PositionOf(q, t)

	if !s.Seeded {
		return Command{ClearDisplay: true}, State{Seeded: true, Quantized: q}
	}

	if !cur.Valid {
		return Command{}, s
	}

	prev := PositionOf(s.Quantized, t)
	delta := RotationDelta(cur, prev)
	cmd := Command{
		MotorSteps: int32(delta * t.StepsPerPosition),
		Power:      PowerOf(q, t),
		Render:     true,
	}
	return cmd, State{Seeded: true, Quantized: q}
}
