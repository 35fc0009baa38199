package types

// ------------------------
// Stepper actuator
// ------------------------

type MotorInfo struct {
	Driver      string `json:"driver"` // "easystepper", "sim", ...
	StepsPerRev uint32 `json:"steps_per_rev"`
	RPM         uint32 `json:"rpm"`
}

// MotorMove commands a relative move in elementary motor steps.
// The actuator has no position feedback; moves are always deltas.
type MotorMove struct {
	Steps int32 `json:"steps"`
}

// MotorMoved is published after a completed move.
type MotorMoved struct {
	Steps int32 `json:"steps"`
	TSms  int64 `json:"ts_ms"`
}

// ------------------------
// Character display
// ------------------------

type DisplayInfo struct {
	Driver string `json:"driver"` // "hd44780", "sim", ...
	Cols   uint8  `json:"cols"`
	Rows   uint8  `json:"rows"`
}

// DisplayFrame is one full refresh of the readout.
type DisplayFrame struct {
	DeciC   int16  `json:"deci_c"`
	RHx100  uint16 `json:"rh_x100"`
	DeciHPa uint32 `json:"deci_hpa"`
	Power   int    `json:"power"` // ventilation power, percent
}

// ------------------------
// Ventilation controller
// ------------------------

// VentTuning is supplied on the "config/vent" bus topic.
// All values have working defaults; zero fields are filled on receipt.
type VentTuning struct {
	Steps            int `json:"steps"`              // discrete positions above 0
	LowRH            int `json:"low_rh"`             // idle at or below, percent
	HighRH           int `json:"high_rh"`            // saturated at or above, percent
	StepRH           int `json:"step_rh"`            // humidity width of one position
	MinPower         int `json:"min_power"`          // power floor, percent
	PercentPerStep   int `json:"percent_per_step"`   // power gained per position
	StepsPerPosition int `json:"steps_per_position"` // elementary motor steps per position

	// Capability names of the collaborators (domain "io").
	Motor   string `json:"motor,omitempty"`   // default "damper"
	Display string `json:"display,omitempty"` // default "panel"
}

// VentState is the controller's retained state topic payload.
type VentState struct {
	Quantized int   `json:"quantized"` // last quantized humidity, percent
	Position  int   `json:"position"`  // last commanded position index
	Power     int   `json:"power"`     // last power level, percent
	Seeded    bool  `json:"seeded"`    // false until the first reading
	TSms      int64 `json:"ts_ms"`
}
