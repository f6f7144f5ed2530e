package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"aquamon-go/bus"
	"aquamon-go/calib"
	"aquamon-go/drivers/iio"
	"aquamon-go/errcode"
	"aquamon-go/services/alert"
	"aquamon-go/services/hal"
	"aquamon-go/services/hal/haltest"
	"aquamon-go/services/sampler"
	"aquamon-go/types"
)

const (
	pin         = 49
	defaultUnit = 5 * time.Millisecond
)

type rig struct {
	p       *haltest.FakePlatform
	st      *alert.State
	conn    *bus.Connection
	tempRaw string
	tdsRaw  string
	sup     *Supervisor
}

// newRig builds a supervisor over fake sysfs files and a fake platform,
// with every interval scaled down to a few milliseconds.
func newRig(t *testing.T, tempRaw, tdsRaw string) *rig {
	t.Helper()
	return newRigUnit(t, defaultUnit, tempRaw, tdsRaw)
}

// newRigUnit is newRig with an explicit time unit: samplers poll every two
// units, the actuator every unit, and driving 1 settles for one unit.
func newRigUnit(t *testing.T, unit time.Duration, tempRaw, tdsRaw string) *rig {
	t.Helper()
	dir := t.TempDir()
	r := &rig{
		p:       haltest.NewFakePlatform(),
		st:      alert.New(),
		tempRaw: filepath.Join(dir, "in_voltage0_raw"),
		tdsRaw:  filepath.Join(dir, "in_voltage1_raw"),
	}
	r.write(t, r.tempRaw, tempRaw)
	r.write(t, r.tdsRaw, tdsRaw)

	port := iio.NewPort(
		iio.Source{ID: "temp", Path: r.tempRaw, Format: iio.FormatInteger},
		iio.Source{ID: "tds", Path: r.tdsRaw, Format: iio.FormatInteger},
	)
	temp, err := sampler.New(sampler.Config{
		Kind:      types.KindTemperature,
		Threshold: sampler.TemperatureThresholdC,
		Interval:  2 * unit,
		Convert:   func(raw types.RawReading) float64 { return calib.ToTemperatureC(raw, calib.DefaultADC) },
	}, iio.NewChannel(port, "temp", drivers.Temperature), r.st)
	if err != nil {
		t.Fatal(err)
	}
	tds, err := sampler.New(sampler.Config{
		Kind:      types.KindWaterQuality,
		Threshold: sampler.WaterQualityThreshold,
		Interval:  2 * unit,
		Convert:   func(raw types.RawReading) float64 { return calib.ToPPM(raw, calib.DefaultTDS) },
	}, iio.NewChannel(port, "tds", drivers.Voltage), r.st)
	if err != nil {
		t.Fatal(err)
	}

	r.conn = bus.NewBus(16).NewConnection("test")
	r.sup = New(Config{
		Pin:              pin,
		Line:             hal.LineConfig{Settle: unit},
		ActuatorInterval: unit,
	}, r.p, r.st, r.conn, temp, tds)
	return r
}

func (r *rig) write(t *testing.T, path, s string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(s+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (r *rig) start() (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.sup.Run(ctx) }()
	return cancel, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	stopWithin(t, cancel, done, 2*time.Second)
}

// stopWithin cancels and requires Run to return cleanly inside limit.
func stopWithin(t *testing.T, cancel context.CancelFunc, done <-chan error, limit time.Duration) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(limit):
		t.Fatalf("supervisor did not stop within %v", limit)
	}
}

func TestHotWaterDrivesLED(t *testing.T) {
	// Both probes over threshold so neither sampler clears the shared flag.
	r := newRig(t, "2275", "1500") // 50 °C, 750 ppm
	cancel, done := r.start()

	waitFor(t, "led on", func() bool { return r.p.Last(pin) == 1 })
	if !r.st.Get() {
		t.Fatal("alert not set")
	}

	// Cool down: the LED follows.
	r.write(t, r.tempRaw, "1365") // 0.6 V -> 10 °C
	r.write(t, r.tdsRaw, "100")
	waitFor(t, "led off", func() bool { return r.p.Last(pin) == 0 })

	stop(t, cancel, done)
}

func TestShutdownReleasesExactlyOnce(t *testing.T) {
	// Long enough that every worker is mid-settle or idle when cancelled.
	const unit = 100 * time.Millisecond
	r := newRigUnit(t, unit, "2275", "1500")
	cancel, done := r.start()
	waitFor(t, "led on", func() bool { return r.p.Last(pin) == 1 })

	// The actuator has the shortest interval: one unit.
	stopWithin(t, cancel, done, unit)

	if n := r.p.Unexports(pin); n != 1 {
		t.Fatalf("released %d times", n)
	}
	if r.p.Exported(pin) {
		t.Fatal("line still exported")
	}
	if r.p.Last(pin) != 0 {
		t.Fatal("led left on at shutdown")
	}

	sub := r.conn.Subscribe(bus.T(types.TokSupervisor, types.TokState))
	select {
	case m := <-sub.Channel():
		if st := m.Payload.(types.SupervisorState); st.Level != "stopped" {
			t.Fatalf("final state=%+v", st)
		}
	default:
		t.Fatal("no retained supervisor state")
	}
}

func TestBothSensorsFailingNoAlert(t *testing.T) {
	r := newRig(t, "not-a-number", "")
	os.Remove(r.tdsRaw)
	faults := r.conn.Subscribe(bus.T(types.TokFault, types.TokSensor, "+"))

	cancel, done := r.start()
	waitFor(t, "led driven", func() bool { return len(r.p.History(pin)) >= 3 })
	stop(t, cancel, done)

	for _, v := range r.p.History(pin) {
		if v != 0 {
			t.Fatalf("led driven high with failing sensors: %v", r.p.History(pin))
		}
	}
	if r.st.Get() {
		t.Fatal("alert raised")
	}
	if len(faults.Channel()) == 0 {
		t.Fatal("no sensor faults published")
	}
}

func TestClaimFailureIsFatal(t *testing.T) {
	r := newRig(t, "0", "0")
	r.p.ExportErr = errcode.PermissionDenied

	err := r.sup.Run(context.Background())
	if errcode.Of(err) != errcode.PermissionDenied {
		t.Fatalf("Run=%v", err)
	}
	if r.p.Unexports(pin) != 0 {
		t.Fatal("released a line that was never claimed")
	}
}

func TestConfigureFailureReleasesClaim(t *testing.T) {
	r := newRig(t, "0", "0")
	r.p.DirErr = errcode.IOFailure

	err := r.sup.Run(context.Background())
	if errcode.Of(err) != errcode.IOFailure {
		t.Fatalf("Run=%v", err)
	}
	if r.p.Unexports(pin) != 1 {
		t.Fatalf("unexports=%d", r.p.Unexports(pin))
	}
}

func TestAlreadyCancelledRunsNoWorkers(t *testing.T) {
	r := newRig(t, "2275", "0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.sup.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if h := r.p.History(pin); len(h) != 1 || h[0] != 0 {
		t.Fatalf("history=%v", h)
	}
	if r.p.Unexports(pin) != 1 {
		t.Fatalf("unexports=%d", r.p.Unexports(pin))
	}
}
