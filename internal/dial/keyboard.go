package dial

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/term"
)

// Keyboard is the fallback sensor used when no rotary dial hardware is
// present: digit keys 0-9 simulate dial pulses, 'p' simulates pick-up and
// 'h' simulates hang-up (spec §4.C, §9 "keyboard fallback for
// development/demo use").
//
// Grounded on doismellburning-samoyed/src/serial_port.go's use of
// github.com/pkg/term to put a tty into raw mode before reading
// individual bytes.
type Keyboard struct {
	t   *term.Term
	log *log.Logger
}

// OpenKeyboard puts ttyPath into raw mode so single keystrokes arrive
// without waiting for a newline.
func OpenKeyboard(ttyPath string, logger *log.Logger) (*Keyboard, error) {
	t, err := term.Open(ttyPath, term.RawMode)
	if err != nil {
		return nil, err
	}
	return &Keyboard{t: t, log: logger.With("component", "dial.keyboard")}, nil
}

// Close restores the terminal.
func (k *Keyboard) Close() error {
	if k.t == nil {
		return nil
	}
	return k.t.Close()
}

// Run reads single keystrokes until ctx is cancelled, translating them
// into the same Event stream a real Decoder produces.
func (k *Keyboard) Run(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		buf := make([]byte, 1)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := k.t.Read(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				k.log.Warn("keyboard read failed", "err", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			if n == 0 {
				continue
			}

			ev, ok := translate(buf[0], time.Now())
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func translate(b byte, now time.Time) (Event, bool) {
	switch {
	case b >= '0' && b <= '9':
		return Event{Kind: KindDial, Digit: string(b), At: now}, true
	case b == 'p':
		return Event{Kind: KindPickUp, At: now}, true
	case b == 'h':
		return Event{Kind: KindHangUp, At: now}, true
	default:
		return Event{}, false
	}
}
