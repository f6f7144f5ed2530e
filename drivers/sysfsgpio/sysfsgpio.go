// Package sysfsgpio drives digital lines through the legacy sysfs GPIO
// control files:
//
//	echo 49  > <root>/export
//	echo out > <root>/gpio49/direction
//	echo 1   > <root>/gpio49/value
//	echo 49  > <root>/unexport
//
// The root defaults to /sys/class/gpio and may point at any directory with
// the same layout (tests use a temporary tree).
package sysfsgpio

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"aquamon-go/errcode"
)

const DefaultRoot = "/sys/class/gpio"

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Root of the control tree. Default DefaultRoot.
	Root string
	// ExportTimeout bounds the wait for gpioN/ to appear after export
	// (udev may create it asynchronously). Default 500 ms.
	ExportTimeout time.Duration
	// PollInterval between checks while waiting. Default 10 ms.
	PollInterval time.Duration
	// DirMode, when non-zero, is applied to gpioN/ after export.
	DirMode fs.FileMode
}

// Controller implements the GPIO platform over sysfs.
type Controller struct {
	cfg Config
}

func New(cfg Config) *Controller {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	return &Controller{cfg: cfg}
}

func (c *Controller) lineDir(pin int) string {
	return filepath.Join(c.cfg.Root, "gpio"+strconv.Itoa(pin))
}

// Export claims pin and waits for its control directory. If the line
// cannot be prepared after a successful export it is unexported again, so
// a failed claim never leaves the line held.
func (c *Controller) Export(pin int) error {
	if err := writeControl(filepath.Join(c.cfg.Root, "export"), strconv.Itoa(pin)); err != nil {
		return mapErr("export", err)
	}
	if err := c.prepare(pin); err != nil {
		if uerr := c.Unexport(pin); uerr != nil {
			return &errcode.E{C: errcode.Of(err), Op: "export", Msg: "rollback failed", Err: errors.Join(err, uerr)}
		}
		return err
	}
	return nil
}

func (c *Controller) prepare(pin int) error {
	dir := c.lineDir(pin)
	deadline := time.Now().Add(c.cfg.ExportTimeout)
	for {
		_, err := os.Stat(filepath.Join(dir, "value"))
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return &errcode.E{C: errcode.IOFailure, Op: "export", Msg: "line directory did not appear", Err: err}
		}
		time.Sleep(c.cfg.PollInterval)
	}
	if c.cfg.DirMode != 0 {
		if err := os.Chmod(dir, c.cfg.DirMode); err != nil {
			return mapErr("chmod", err)
		}
	}
	return nil
}

func (c *Controller) SetDirection(pin int, dir string) error {
	if err := writeControl(filepath.Join(c.lineDir(pin), "direction"), dir); err != nil {
		return mapErr("direction", err)
	}
	return nil
}

func (c *Controller) Write(pin int, level int) error {
	if err := writeControl(filepath.Join(c.lineDir(pin), "value"), strconv.Itoa(level)); err != nil {
		return mapErr("value", err)
	}
	return nil
}

func (c *Controller) Unexport(pin int) error {
	if err := writeControl(filepath.Join(c.cfg.Root, "unexport"), strconv.Itoa(pin)); err != nil {
		return mapErr("unexport", err)
	}
	return nil
}

// writeControl writes one token to an existing control file. Control files
// are never created: a missing file means the platform does not offer it.
func writeControl(path, v string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// mapErr classifies an OS error into the GPIO taxonomy.
func mapErr(op string, err error) error {
	var c errcode.Code
	switch {
	case errors.Is(err, syscall.EBUSY):
		c = errcode.AlreadyClaimed
	case errors.Is(err, fs.ErrPermission):
		c = errcode.PermissionDenied
	default:
		c = errcode.IOFailure
	}
	return &errcode.E{C: c, Op: op, Err: err}
}
