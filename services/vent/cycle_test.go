// services/vent/cycle_test.go
package vent

import (
	"testing"

	"ventcode-go/types"
)

func seeded(q int) State { return State{Seeded: true, Quantized: q} }

func TestPlanSeedsWithoutActuation(t *testing.T) {
	cmd, st := Plan(6300, State{}, refTuning())
	if cmd.MotorSteps != 0 || cmd.Render {
		t.Fatalf("seeding cycle actuated: %+v", cmd)
	}
	if !cmd.ClearDisplay {
		t.Fatal("seeding cycle should clear the display")
	}
	if !st.Seeded || st.Quantized != 65 {
		t.Fatalf("unexpected seeded state: %+v", st)
	}
}

func TestPlanUnusableReadingBeforeSeed(t *testing.T) {
	cmd, st := Plan(-100, State{}, refTuning())
	if cmd != (Command{}) {
		t.Fatalf("unusable reading planned %+v", cmd)
	}
	if st.Seeded {
		t.Fatal("state seeded from unusable reading")
	}
}

func TestPlanSteadyCycle(t *testing.T) {
	cases := []struct {
		name      string
		prevQ     int
		rhX100    int
		wantSteps int32
		wantPower int
	}{
		{"idle stays idle", 50, 0, 0, 17},
		{"at low threshold", 50, 5000, 0, 17},
		{"low to saturated", 50, 8000, -990, 100},
		{"beyond range still saturated", 80, 10000, 0, 100},
		{"one position up", 50, 5500, -165, 17},
		{"one position down", 55, 5000, 165, 17},
		{"no change zero-length move", 65, 6500, 0, 51},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cmd, st := Plan(c.rhX100, seeded(c.prevQ), refTuning())
			if !cmd.Render {
				t.Fatal("steady cycle should render")
			}
			if cmd.MotorSteps != c.wantSteps {
				t.Errorf("MotorSteps = %d, want %d", cmd.MotorSteps, c.wantSteps)
			}
			if cmd.Power != c.wantPower {
				t.Errorf("Power = %d, want %d", cmd.Power, c.wantPower)
			}
			if !st.Seeded || st.Quantized != Quantize(c.rhX100) {
				t.Errorf("state not advanced: %+v", st)
			}
		})
	}
}

// An unusable reading mid-run must hold the damper and keep the state
// pointing at the position the damper was last commanded to.
func TestPlanUnusableReadingHoldsState(t *testing.T) {
	cmd, st := Plan(-100, seeded(65), refTuning())
	if cmd != (Command{}) {
		t.Fatalf("unusable reading planned %+v", cmd)
	}
	if st != seeded(65) {
		t.Fatalf("state changed on unusable reading: %+v", st)
	}

	// Recovery: the next usable reading moves relative to the held state.
	cmd, _ = Plan(7000, st, refTuning())
	if cmd.MotorSteps != -165 { // 65 -> 70 is one position
		t.Fatalf("recovery move = %d, want -165", cmd.MotorSteps)
	}
}

func TestPlanIsPure(t *testing.T) {
	st := seeded(50)
	a, _ := Plan(8000, st, refTuning())
	b, _ := Plan(8000, st, refTuning())
	if a != b {
		t.Fatalf("Plan not deterministic: %+v vs %+v", a, b)
	}
	if st != seeded(50) {
		t.Fatalf("Plan mutated its input state: %+v", st)
	}
}

func TestPlanCustomTuning(t *testing.T) {
	tn := types.VentTuning{
		Steps:            4,
		LowRH:            40,
		HighRH:           60,
		StepRH:           5,
		MinPower:         25,
		PercentPerStep:   25,
		StepsPerPosition: 100,
	}
	cmd, _ := Plan(6000, seeded(40), tn)
	if cmd.MotorSteps != -400 {
		t.Errorf("MotorSteps = %d, want -400", cmd.MotorSteps)
	}
	if cmd.Power != 100 {
		t.Errorf("Power = %d, want 100", cmd.Power)
	}
}
