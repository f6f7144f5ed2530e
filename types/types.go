package types

// ---- Sensor kinds ----

type Kind string

const (
	KindTemperature  Kind = "temperature"
	KindWaterQuality Kind = "water_quality"
)

// Unit returns the engineering unit readings of this kind are reported in.
func (k Kind) Unit() string {
	switch k {
	case KindTemperature:
		return "C"
	case KindWaterQuality:
		return "ppm"
	default:
		return ""
	}
}

// RawReading is an unconverted sample from a sensor's native interface
// (ADC counts, or milli-°C for w1 therm sources).
type RawReading int64

// ---- Published payloads (bus) ----

// ReadingEvent is published on reading/<kind> once per successful poll.
type ReadingEvent struct {
	Kind  Kind       `json:"kind"`
	Raw   RawReading `json:"raw"`
	Value float64    `json:"value"`
	Unit  string     `json:"unit"`
	Over  bool       `json:"over"` // above the kind's threshold
	TS    int64      `json:"ts_ms"`
}

// SensorFault is published on fault/sensor/<kind> when a poll fails.
type SensorFault struct {
	Kind   Kind   `json:"kind"`
	Source string `json:"source"`
	Code   string `json:"code"` // errcode value
	Err    string `json:"error"`
	TS     int64  `json:"ts_ms"`
}

// AlertEvent is published on alert/transition when a sampler flips the
// shared alert flag.
type AlertEvent struct {
	Active bool    `json:"active"`
	Cause  Kind    `json:"cause"`
	Value  float64 `json:"value"`
	TS     int64   `json:"ts_ms"`
}

// LEDValue is published (retained) on led/value when the driven level changes.
type LEDValue struct {
	Pin   int   `json:"pin"`
	Level uint8 `json:"level"` // 0 or 1
	TS    int64 `json:"ts_ms"`
}

// GPIOFault is published on fault/gpio when a line operation fails.
type GPIOFault struct {
	Pin  int    `json:"pin"`
	Op   string `json:"op"`
	Code string `json:"code"`
	Err  string `json:"error"`
	TS   int64  `json:"ts_ms"`
}

// ---- Supervisor state (retained) ----

type SupervisorState struct {
	Level  string `json:"level"`  // "starting", "running", "stopping", "stopped", "error"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}
