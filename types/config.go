package types

// HALConfig is supplied on the "config/hal" bus topic.
type HALConfig struct {
	Devices []HALDevice `json:"devices"`
}

// HALDevice describes one physical or logical device to be managed by HAL.
type HALDevice struct {
	ID     string `json:"id"`   // logical device id
	Type   string `json:"type"` // e.g. "bme280"
	Params any    `json:"params,omitempty"`
	BusRef BusRef `json:"bus_ref,omitempty"` // for shared-bus devices (I²C)
}

// BusRef identifies a named bus instance configured in the platform layer.
type BusRef struct {
	Type string `json:"type"` // "i2c"
	ID   string `json:"id"`   // "i2c0", "i2c1"
}

// ---- Device param shapes ----

type BME280Params struct {
	Addr     int    `json:"addr,omitempty"`      // default 0x76
	PeriodMS uint32 `json:"period_ms,omitempty"` // poll interval, default 10000
	Domain   string `json:"domain,omitempty"`
	Name     string `json:"name,omitempty"`
}

type StepperParams struct {
	Pins        [4]int `json:"pins"`          // IN1..IN4 driver inputs
	StepsPerRev uint32 `json:"steps_per_rev"` // e.g. 2048 for 28BYJ-48 half-geared
	RPM         uint32 `json:"rpm"`           // set once at init
	Domain      string `json:"domain,omitempty"`
	Name        string `json:"name,omitempty"`
}

type DisplayParams struct {
	Addr   int    `json:"addr,omitempty"` // default 0x27
	Cols   uint8  `json:"cols,omitempty"` // default 16
	Rows   uint8  `json:"rows,omitempty"` // default 2
	Domain string `json:"domain,omitempty"`
	Name   string `json:"name,omitempty"`
}
