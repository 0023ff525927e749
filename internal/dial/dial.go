// Package dial decodes sensor input: either a real rotary dial and hook
// switch wired through a shared I2C GPIO expander, or — when no such
// hardware is present — a keyboard fallback (spec §4.C).
//
// The pulse-counting state machine is grounded on
// doismellburning-samoyed/src/dtmf.go's shape of a small per-sample state
// machine accumulating symbols until a quiet period finalizes one, here
// applied to rotary make/break pulses instead of DTMF tone samples.
package dial

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tapirbug/fernspielapparat/internal/i2cbus"
)

// Event kinds mirror the reason keys a phonebook transition table can
// match on (spec §3 TransitionTable): "dial", "pick_up", "hang_up".
const (
	KindDial   = "dial"
	KindPickUp = "pick_up"
	KindHangUp = "hang_up"
)

// Event is one decoded sensor occurrence.
type Event struct {
	Kind  string
	Digit string // set only for KindDial
	At    time.Time
}

// interDigitTimeout is how long the pulse line must stay idle before a
// run of pulses is finalized into a digit (spec §4.C).
const interDigitTimeout = 400 * time.Millisecond

// Decoder reads a rotary dial and hook switch off a shared I2C GPIO
// expander register.
type Decoder struct {
	bus  i2cbus.Bus
	addr uint16
	reg  byte

	pulseMask byte
	hookMask  byte

	log *log.Logger
}

// NewDecoder builds a Decoder reading reg on the device at addr on bus.
// pulseMask/hookMask select which bits of that register carry the pulse
// line and hook switch respectively.
func NewDecoder(bus i2cbus.Bus, addr uint16, reg byte, pulseMask, hookMask byte, logger *log.Logger) *Decoder {
	return &Decoder{
		bus:       bus,
		addr:      addr,
		reg:       reg,
		pulseMask: pulseMask,
		hookMask:  hookMask,
		log:       logger.With("component", "dial"),
	}
}

// Run polls the register every pollInterval until ctx is cancelled,
// decoding pulse trains into digits and hook-switch edges into pick_up /
// hang_up events on the returned channel, which is closed when Run
// returns.
func (d *Decoder) Run(ctx context.Context, pollInterval time.Duration) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		var (
			pulseHigh  bool
			pulses     int
			lastPulse  time.Time
			hookOff    bool
			haveHook   bool
		)

		emit := func(ev Event) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				raw, err := d.bus.ReadByteData(d.addr, d.reg)
				if err != nil {
					d.log.Warn("dial read failed", "err", err)
					continue
				}

				high := raw&d.pulseMask != 0
				if high && !pulseHigh {
					pulses++
					lastPulse = now
				}
				pulseHigh = high

				if pulses > 0 && now.Sub(lastPulse) >= interDigitTimeout {
					digit := pulses % 10
					emit(Event{Kind: KindDial, Digit: strconv.Itoa(digit), At: now})
					pulses = 0
				}

				off := raw&d.hookMask != 0
				if !haveHook {
					haveHook = true
					hookOff = off
					continue
				}
				if off != hookOff {
					hookOff = off
					if off {
						emit(Event{Kind: KindHangUp, At: now})
					} else {
						emit(Event{Kind: KindPickUp, At: now})
					}
				}
			}
		}
	}()

	return out
}
