// Package bell drives the hardware bell relay (spec §4.B): ring for a
// requested duration, capped to a hardware-safe maximum, with a no-op
// fallback when no GPIO line is present at startup.
//
// Grounded on doismellburning-samoyed/src/ptt.go's GPIO-backed actuator
// (a line driven high for a bounded time, with detection of whether the
// hardware is even present before committing to using it).
package bell

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
)

// maxRing is the hardware safety cap: even a misbehaving phonebook cannot
// hold the relay closed longer than this (spec §4.B).
const maxRing = 2 * time.Second

// Line is the subset of a gpiocdev output line the driver needs, kept
// narrow so tests can fake it without a real chip.
type Line interface {
	SetValue(value int) error
	Close() error
}

// Driver rings the bell relay. The zero value is not usable; use New or
// NewNoop.
type Driver struct {
	line Line
	log  *log.Logger

	ringing chan struct{}
}

// New opens the given GPIO chip/line as an output and returns a Driver
// backed by real hardware.
func New(chip string, offset int, logger *log.Logger) (*Driver, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	return &Driver{line: l, log: logger.With("component", "bell")}, nil
}

// NewNoop returns a Driver with no backing hardware: Ring still honors
// timing and cancellation but never touches a GPIO line (spec §4.B: "no
// hardware detected at startup -> bell actuator is a no-op that still
// honors Ring's timing contract").
func NewNoop(logger *log.Logger) *Driver {
	return &Driver{log: logger.With("component", "bell")}
}

// Ring closes the relay for d, capped at maxRing, and opens it again
// either when the duration elapses or ctx is cancelled — whichever comes
// first. Ring does not guard against overlapping calls; callers serialize
// through the actuator scheduler instead.
func (d *Driver) Ring(ctx context.Context, dur time.Duration) error {
	if dur > maxRing {
		d.log.Warn("ring duration exceeds hardware safety cap, truncating", "requested", dur, "cap", maxRing)
		dur = maxRing
	}
	if dur <= 0 {
		return errors.New("bell: ring duration must be positive")
	}

	if err := d.setValue(1); err != nil {
		return err
	}
	defer d.setValue(0)

	select {
	case <-time.After(dur):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) setValue(v int) error {
	if d.line == nil {
		return nil
	}
	return d.line.SetValue(v)
}

// Close releases the underlying GPIO line, if any.
func (d *Driver) Close() error {
	if d.line == nil {
		return nil
	}
	return d.line.Close()
}
