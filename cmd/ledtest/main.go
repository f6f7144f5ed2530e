// cmd/ledtest/main.go
//
// Manual check of the alert LED wiring: claim the line, blink it, release.
//
//	ledtest -pin 49 -n 5 -on 300ms -off 300ms
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aquamon-go/drivers/sysfsgpio"
	"aquamon-go/services/config"
	"aquamon-go/services/hal"
	"aquamon-go/x/mathx"
)

const (
	minBlinks = 1
	maxBlinks = 100
)

func main() {
	// Defaults come from the same environment the daemon reads.
	def := config.Config{GPIORoot: sysfsgpio.DefaultRoot, LEDPin: config.DefaultLEDPin, GPIOExportTimeout: 500 * time.Millisecond}
	if c, err := config.Load(); err == nil {
		def = *c
	}

	root := flag.String("root", def.GPIORoot, "sysfs gpio root")
	pin := flag.Int("pin", def.LEDPin, "gpio line number")
	n := flag.Int("n", 3, "number of blinks")
	on := flag.Duration("on", 300*time.Millisecond, "time on per blink")
	off := flag.Duration("off", 300*time.Millisecond, "time off per blink")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := blink(ctx, *root, *pin, mathx.Clamp(*n, minBlinks, maxBlinks), *on, *off, def.GPIOExportTimeout); err != nil {
		fmt.Fprintln(os.Stderr, "[ledtest]", err)
		os.Exit(1)
	}
	fmt.Println("[ledtest] PASS")
}

func blink(ctx context.Context, root string, pin, n int, on, off, exportTimeout time.Duration) (err error) {
	p := sysfsgpio.New(sysfsgpio.Config{Root: root, ExportTimeout: exportTimeout})
	h, err := hal.Claim(p, pin, hal.LineConfig{Settle: on})
	if err != nil {
		return err
	}
	defer func() {
		if rerr := h.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	if err := h.Configure(hal.DirOut); err != nil {
		return err
	}

	for i := 0; i < n && ctx.Err() == nil; i++ {
		fmt.Printf("[ledtest] gpio%d blink %d/%d\n", pin, i+1, n)
		// SetValue(1) holds for the settle time, which is the on time here.
		if err := h.SetValue(ctx, 1); err != nil {
			return err
		}
		if err := h.SetValue(ctx, 0); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(off):
		}
	}
	return h.SetValue(context.Background(), 0)
}
