package types

// ------------------------
// Environmental readings
// ------------------------

type ClimateInfo struct {
	Sensor string `json:"sensor"` // "bme280", ...
	Addr   uint16 `json:"addr"`   // I2C address
	Bus    string `json:"bus"`    // "i2c0", ...
}

type TemperatureValue struct {
	// Tenths of °C (e.g. 231 => 23.1°C).
	DeciC int16 `json:"deci_c"`
	TSms  int64 `json:"ts_ms"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
	TSms   int64  `json:"ts_ms"`
}

type PressureValue struct {
	// Tenths of hPa (e.g. 10132 => 1013.2 hPa).
	DeciHPa uint32 `json:"deci_hpa"`
	TSms    int64  `json:"ts_ms"`
}
