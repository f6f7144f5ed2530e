// Package iio reads raw samples from sysfs-style sensor files.
//
// Each source is a file that is opened, scanned for the first value in the
// source's encoding, and closed on every read:
//
//	FormatInteger  "2275\n"                    (IIO in_voltageN_raw)
//	FormatW1Therm  "... YES\n... t=23125\n"    (w1 therm slave, milli-°C)
//
// No retries are performed here; callers own retry policy.
package iio

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"aquamon-go/errcode"
	"aquamon-go/types"

	"tinygo.org/x/drivers"
)

// Format selects how a source file is decoded.
type Format uint8

const (
	FormatInteger Format = iota
	FormatW1Therm
)

// ParseFormat accepts "int"/"integer"/"iio" and "w1"/"w1therm".
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "int", "integer", "iio", "raw":
		return FormatInteger, true
	case "w1", "w1therm", "w1_therm", "ds18b20":
		return FormatW1Therm, true
	default:
		return FormatInteger, false
	}
}

func (f Format) String() string {
	if f == FormatW1Therm {
		return "w1therm"
	}
	return "integer"
}

// Source binds an identifier to a backing file.
type Source struct {
	ID     string
	Path   string
	Format Format
}

// Port reads one raw value from a named source. The source set is fixed
// at construction, so concurrent reads need no locking.
type Port struct {
	sources map[string]Source
}

func NewPort(sources ...Source) *Port {
	p := &Port{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		p.sources[s.ID] = s
	}
	return p
}

// Read opens the source, extracts its first value and closes it.
// Fails with errcode.Unavailable or errcode.ParseFailure.
func (p *Port) Read(sourceID string) (types.RawReading, error) {
	src, ok := p.sources[sourceID]
	if !ok {
		return 0, &errcode.E{C: errcode.Unavailable, Op: "iio.read", Msg: "unknown source " + sourceID}
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return 0, errcode.Wrap(errcode.Unavailable, "iio.read", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := parseLine(sc.Text(), src.Format); ok {
			return v, nil
		}
		if src.Format == FormatInteger {
			// IIO files carry exactly one value on the first line.
			break
		}
	}
	if err := sc.Err(); err != nil {
		return 0, errcode.Wrap(errcode.Unavailable, "iio.read", err)
	}
	return 0, &errcode.E{C: errcode.ParseFailure, Op: "iio.read", Msg: src.Path}
}

func parseLine(line string, f Format) (types.RawReading, bool) {
	switch f {
	case FormatW1Therm:
		i := strings.Index(line, "t=")
		if i < 0 {
			return 0, false
		}
		return parseInt(line[i+2:])
	default:
		return parseInt(line)
	}
}

func parseInt(s string) (types.RawReading, bool) {
	s = strings.TrimSpace(s)
	if j := strings.IndexAny(s, " \t"); j >= 0 {
		s = s[:j]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return types.RawReading(v), true
}

// ----------------------------- drivers.Sensor -------------------------------

// Channel exposes one source through the TinyGo drivers.Sensor contract:
// Update refreshes the cached sample, Raw returns it.
type Channel struct {
	port  *Port
	id    string
	which drivers.Measurement
	raw   types.RawReading
}

// NewChannel binds sourceID on port to the given measurement.
func NewChannel(port *Port, sourceID string, which drivers.Measurement) *Channel {
	return &Channel{port: port, id: sourceID, which: which}
}

func (c *Channel) SourceID() string                 { return c.id }
func (c *Channel) Measurement() drivers.Measurement { return c.which }
func (c *Channel) Raw() types.RawReading            { return c.raw }

// Update reads the source if which includes this channel's measurement.
// The cached sample is left untouched on error.
func (c *Channel) Update(which drivers.Measurement) error {
	if which&c.which == 0 {
		return nil
	}
	v, err := c.port.Read(c.id)
	if err != nil {
		return err
	}
	c.raw = v
	return nil
}

var _ drivers.Sensor = (*Channel)(nil)
