package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: board ID (same value placed in ctx under CtxBoardKey)
// Val: raw JSON bytes for that board
// -----------------------------------------------------------------------------

// Reference fit-out: BME280 + 16x2 panel on i2c0, 28BYJ-48 damper on GP2..GP5.
const cfgPicoVent = `{
  "hal": {
    "devices": [
      {
        "id": "climate",
        "type": "bme280",
        "bus_ref": {"type": "i2c", "id": "i2c0"},
        "params": {"period_ms": 10000}
      },
      {
        "id": "damper",
        "type": "stepper",
        "params": {"pins": [2, 3, 4, 5], "steps_per_rev": 2048, "rpm": 10}
      },
      {
        "id": "panel",
        "type": "hd44780",
        "bus_ref": {"type": "i2c", "id": "i2c0"},
        "params": {"cols": 16, "rows": 2}
      }
    ]
  },
  "vent": {
    "motor": "damper",
    "display": "panel"
  },
  "telemetry": {
    "transport": "uart",
    "uart": {"baud": 115200}
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico-vent": []byte(cfgPicoVent),
}
