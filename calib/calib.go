// Package calib maps raw sensor samples onto engineering units.
//
// Every function here is pure: the same input always yields the same output
// and nothing is read from or written to shared state.
package calib

import (
	"aquamon-go/types"
	"aquamon-go/x/mathx"
)

// ADC describes the analogue front end of the temperature probe.
//
//	volts = Vref * raw / MaxCount
//	°C    = (volts*1000 - 500) / 10
//
// i.e. a TMP36-style transfer function: 500 mV offset, 10 mV/°C.
type ADC struct {
	Vref     float64 // volts at full scale
	MaxCount float64 // full-scale count (4095 for 12 bit)
}

// TDS describes the linear calibration of the water-quality probe.
type TDS struct {
	Factor float64 // ppm per count
	Offset float64 // ppm
}

// Defaults for a 12-bit, 1.8 V reference IIO ADC.
var (
	DefaultADC = ADC{Vref: 1.8, MaxCount: 4095}
	DefaultTDS = TDS{Factor: 0.5, Offset: 0.0}
)

const (
	offsetMilliV = 500.0
	milliVPerC   = 10.0
)

// ToTemperatureC converts an ADC count to degrees Celsius.
func ToTemperatureC(raw types.RawReading, a ADC) float64 {
	volts := a.Vref * (float64(raw) / a.MaxCount)
	return (1000*volts - offsetMilliV) / milliVPerC
}

// ToPPM converts an ADC count to parts-per-million. Never negative.
func ToPPM(raw types.RawReading, t TDS) float64 {
	return mathx.Floor(float64(raw)*t.Factor+t.Offset, 0.0)
}

// MilliCToC converts a w1-therm sample (milli-°C) to degrees Celsius.
func MilliCToC(raw types.RawReading) float64 {
	return float64(raw) / 1000.0
}
