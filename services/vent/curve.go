// services/vent/curve.go
package vent

import (
	"ventcode-go/types"
	"ventcode-go/x/mathx"
)

// -----------------------------------------------------------------------------
// Tuning
// -----------------------------------------------------------------------------

// Reference tuning for a 6-position damper on a 28BYJ-48 stepper.
const (
	DefaultSteps            = 6   // discrete positions above fully-idle
	DefaultLowRH            = 50  // %RH at or below which the damper is at 0
	DefaultHighRH           = 80  // %RH at or above which the damper saturates
	DefaultStepRH           = 5   // %RH width of one position
	DefaultMinPower         = 17  // power floor while ventilation is active
	DefaultPercentPerStep   = 17  // ~100/DefaultSteps
	DefaultStepsPerPosition = 165 // elementary motor steps per position
)

// Defaults returns the reference tuning.
func Defaults() types.VentTuning {
	return types.VentTuning{
		Steps:            DefaultSteps,
		LowRH:            DefaultLowRH,
		HighRH:           DefaultHighRH,
		StepRH:           DefaultStepRH,
		MinPower:         DefaultMinPower,
		PercentPerStep:   DefaultPercentPerStep,
		StepsPerPosition: DefaultStepsPerPosition,
	}
}

// withDefaults fills zero fields so a partial config never divides by zero.
func withDefaults(t types.VentTuning) types.VentTuning {
	d := Defaults()
	if t.Steps <= 0 {
		t.Steps = d.Steps
	}
	if t.LowRH <= 0 {
		t.LowRH = d.LowRH
	}
	if t.HighRH <= t.LowRH {
		t.HighRH = t.LowRH + t.Steps*DefaultStepRH
	}
	if t.StepRH <= 0 {
		t.StepRH = d.StepRH
	}
	if t.MinPower <= 0 {
		t.MinPower = d.MinPower
	}
	if t.PercentPerStep <= 0 {
		t.PercentPerStep = d.PercentPerStep
	}
	if t.StepsPerPosition <= 0 {
		t.StepsPerPosition = d.StepsPerPosition
	}
	return t
}

// -----------------------------------------------------------------------------
// Position
// -----------------------------------------------------------------------------

// Position is a discrete damper setting: 0 (idle) through Steps (fully open).
// Valid is false when the reading it derives from was unusable; an invalid
// Position never moves the actuator.
type Position struct {
	Index int
	Valid bool
}

// -----------------------------------------------------------------------------
// Curve functions
// -----------------------------------------------------------------------------

// Quantize maps a humidity reading in hundredths of %RH to the nearest
// multiple of 5 %RH, suppressing sensor jitter. Round half away from zero.
// Total: no error conditions, even for out-of-physical-range input.
func Quantize(rhX100 int) int {
	return mathx.RoundDiv(rhX100, 500) * 5
}

// PositionOf maps a quantized humidity (percent) to a damper position.
// Monotonic and saturating; negative input propagates as an invalid Position
// rather than clamping to idle.
func PositionOf(h int, t types.VentTuning) Position {
	t = withDefaults(t)
	switch {
	case h < 0:
		return Position{}
	case h <= t.LowRH:
		return Position{Valid: true}
	case h >= t.HighRH:
		return Position{Index: t.Steps, Valid: true}
	default:
		return Position{Index: mathx.RoundDiv(h-t.LowRH, t.StepRH), Valid: true}
	}
}

// PowerOf maps a quantized humidity (percent) to a ventilation power level
// in [MinPower, 100]. The intermediate division truncates whole positions
// before scaling, matching the original controller's arithmetic; after
// quantization the input is a multiple of StepRH so nothing is lost there.
func PowerOf(h int, t types.VentTuning) int {
	t = withDefaults(t)
	switch {
	case h <= t.LowRH:
		return t.MinPower
	case h >= t.HighRH:
		return 100
	default:
		p := (h - t.LowRH) / t.StepRH * t.PercentPerStep
		return mathx.Clamp(p, t.MinPower, 100)
	}
}

// RotationDelta returns the signed position change to command. The sign is
// inverted because the damper's positive rotation sense runs against the
// logical position scale. Either side invalid is a fail-safe no-op.
func RotationDelta(cur, prev Position) int {
	if !cur.Valid || !prev.Valid {
		return 0
	}
	return -(cur.Index - prev.Index)
}
