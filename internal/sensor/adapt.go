package sensor

import (
	"github.com/tapirbug/fernspielapparat/internal/dial"
	"github.com/tapirbug/fernspielapparat/internal/evaluator"
)

// FromDial adapts a dial.Decoder/Keyboard event stream into a Source.
func FromDial(events <-chan dial.Event) Source {
	out := make(chan evaluator.Input)
	go func() {
		defer close(out)
		for ev := range events {
			out <- evaluator.Input{Kind: ev.Kind, Digit: ev.Digit, At: ev.At}
		}
	}()
	return out
}
