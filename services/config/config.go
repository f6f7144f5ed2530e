// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aquamon-go/calib"
	"aquamon-go/drivers/iio"
	"aquamon-go/errcode"
	"aquamon-go/x/timex"
)

type EnvKey string

const (
	EnvFile EnvKey = "AQUAMON_ENV_FILE"

	EnvTempPath   EnvKey = "TEMP_PATH"
	EnvTempFormat EnvKey = "TEMP_FORMAT"
	EnvTDSPath    EnvKey = "TDS_PATH"

	EnvADCVref     EnvKey = "ADC_VREF"
	EnvADCMaxCount EnvKey = "ADC_MAX_COUNT"
	EnvTDSFactor   EnvKey = "TDS_FACTOR"
	EnvTDSOffset   EnvKey = "TDS_OFFSET"

	EnvTempThreshold EnvKey = "TEMP_THRESHOLD_C"
	EnvTDSThreshold  EnvKey = "TDS_THRESHOLD_PPM"

	EnvGPIORoot          EnvKey = "GPIO_ROOT"
	EnvLEDPin            EnvKey = "LED_PIN"
	EnvGPIOExportTimeout EnvKey = "GPIO_EXPORT_TIMEOUT"
	EnvGPIODirMode       EnvKey = "GPIO_DIR_MODE"

	EnvTimeUnit      EnvKey = "TIME_UNIT"
	EnvSamplerUnits  EnvKey = "SAMPLER_INTERVAL_UNITS"
	EnvActuatorUnits EnvKey = "ACTUATOR_INTERVAL_UNITS"
	EnvSettleUnits   EnvKey = "SETTLE_UNITS"

	EnvStatusEvery EnvKey = "STATUS_EVERY"
	EnvLogLevel    EnvKey = "LOG_LEVEL"
	EnvLogFormat   EnvKey = "LOG_FORMAT"
)

const (
	DefaultTempPath = "/sys/bus/iio/devices/iio:device0/in_voltage0_raw"
	DefaultTDSPath  = "/sys/bus/iio/devices/iio:device0/in_voltage1_raw"
	DefaultLEDPin   = 49
)

type Config struct {
	TempPath   string
	TempFormat iio.Format
	TDSPath    string

	ADC calib.ADC
	TDS calib.TDS

	TempThresholdC  float64
	TDSThresholdPPM float64

	GPIORoot          string
	LEDPin            int
	GPIOExportTimeout time.Duration
	GPIODirMode       os.FileMode // 0 leaves the exported directory alone

	TimeUnit      time.Duration
	SamplerUnits  float64
	ActuatorUnits float64
	SettleUnits   float64

	StatusEvery time.Duration // 0 disables the status line
	LogLevel    slog.Level
	LogFormat   string // "text" or "json"
}

// Load reads the environment. A .env file in the working directory is used
// when present; AQUAMON_ENV_FILE names one that must exist. Variables
// already set in the environment take precedence over the file.
func Load() (*Config, error) {
	if f, ok := os.LookupEnv(string(EnvFile)); ok && f != "" {
		if err := godotenv.Load(f); err != nil {
			return nil, &errcode.E{C: errcode.InvalidConfig, Op: "config.load", Msg: f, Err: err}
		}
	} else {
		// Missing .env is fine.
		_ = godotenv.Load()
	}

	var l loader
	c := &Config{
		TempPath:   l.getString(EnvTempPath, DefaultTempPath),
		TempFormat: l.getFormat(EnvTempFormat, iio.FormatInteger),
		TDSPath:    l.getString(EnvTDSPath, DefaultTDSPath),

		ADC: calib.ADC{
			Vref:     l.getFloat(EnvADCVref, calib.DefaultADC.Vref),
			MaxCount: l.getFloat(EnvADCMaxCount, calib.DefaultADC.MaxCount),
		},
		TDS: calib.TDS{
			Factor: l.getFloat(EnvTDSFactor, calib.DefaultTDS.Factor),
			Offset: l.getFloat(EnvTDSOffset, calib.DefaultTDS.Offset),
		},

		TempThresholdC:  l.getFloat(EnvTempThreshold, 45.0),
		TDSThresholdPPM: l.getFloat(EnvTDSThreshold, 700.0),

		GPIORoot:          l.getString(EnvGPIORoot, "/sys/class/gpio"),
		LEDPin:            l.getInt(EnvLEDPin, DefaultLEDPin),
		GPIOExportTimeout: l.getDuration(EnvGPIOExportTimeout, 500*time.Millisecond),
		GPIODirMode:       l.getMode(EnvGPIODirMode, 0),

		TimeUnit:      l.getDuration(EnvTimeUnit, time.Second),
		SamplerUnits:  l.getFloat(EnvSamplerUnits, 2),
		ActuatorUnits: l.getFloat(EnvActuatorUnits, 1),
		SettleUnits:   l.getFloat(EnvSettleUnits, 1),

		StatusEvery: l.getDuration(EnvStatusEvery, 30*time.Second),
		LogLevel:    l.getLevel(EnvLogLevel, slog.LevelInfo),
		LogFormat:   strings.ToLower(l.getString(EnvLogFormat, "text")),
	}
	if len(l.errs) > 0 {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "config.load", Err: errors.Join(l.errs...)}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks ranges that the type system cannot.
func (c *Config) Validate() error {
	var errs []error
	bad := func(key EnvKey, msg string) {
		errs = append(errs, fmt.Errorf("%s: %s", key, msg))
	}
	if c.TempPath == "" {
		bad(EnvTempPath, "empty")
	}
	if c.TDSPath == "" {
		bad(EnvTDSPath, "empty")
	}
	if c.ADC.MaxCount <= 0 {
		bad(EnvADCMaxCount, "must be positive")
	}
	if c.ADC.Vref <= 0 {
		bad(EnvADCVref, "must be positive")
	}
	if c.GPIORoot == "" {
		bad(EnvGPIORoot, "empty")
	}
	if c.LEDPin < 0 {
		bad(EnvLEDPin, "must not be negative")
	}
	if c.TimeUnit <= 0 {
		bad(EnvTimeUnit, "must be positive")
	}
	if c.SamplerUnits <= 0 {
		bad(EnvSamplerUnits, "must be positive")
	}
	if c.ActuatorUnits <= 0 {
		bad(EnvActuatorUnits, "must be positive")
	}
	if c.SettleUnits < 0 {
		bad(EnvSettleUnits, "must not be negative")
	}
	if c.StatusEvery < 0 {
		bad(EnvStatusEvery, "must not be negative")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		bad(EnvLogFormat, "want text or json, got "+strconv.Quote(c.LogFormat))
	}
	if len(errs) > 0 {
		return &errcode.E{C: errcode.InvalidConfig, Op: "config.validate", Err: errors.Join(errs...)}
	}
	return nil
}

func (c *Config) SamplerInterval() time.Duration  { return timex.Units(c.SamplerUnits, c.TimeUnit) }
func (c *Config) ActuatorInterval() time.Duration { return timex.Units(c.ActuatorUnits, c.TimeUnit) }
func (c *Config) Settle() time.Duration           { return timex.Units(c.SettleUnits, c.TimeUnit) }

// loader collects malformed values instead of silently using defaults.
type loader struct {
	errs []error
}

func (l *loader) lookup(key EnvKey) (string, bool) {
	v, ok := os.LookupEnv(string(key))
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (l *loader) fail(key EnvKey, v string, err error) {
	l.errs = append(l.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (l *loader) getString(key EnvKey, def string) string {
	if v, ok := l.lookup(key); ok {
		return v
	}
	return def
}

func (l *loader) getInt(key EnvKey, def int) int {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return n
}

func (l *loader) getFloat(key EnvKey, def float64) float64 {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return f
}

func (l *loader) getDuration(key EnvKey, def time.Duration) time.Duration {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return d
}

// getMode parses an octal permission such as "0770".
func (l *loader) getMode(key EnvKey, def os.FileMode) os.FileMode {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 8, 32)
	if err != nil || n > 0o777 {
		if err == nil {
			err = errors.New("out of range")
		}
		l.fail(key, v, err)
		return def
	}
	return os.FileMode(n)
}

func (l *loader) getFormat(key EnvKey, def iio.Format) iio.Format {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	f, ok := iio.ParseFormat(v)
	if !ok {
		l.fail(key, v, errors.New("want integer or w1therm"))
		return def
	}
	return f
}

func (l *loader) getLevel(key EnvKey, def slog.Level) slog.Level {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(v)); err != nil {
		l.fail(key, v, err)
		return def
	}
	return lv
}
