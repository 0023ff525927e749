// Package sensor merges the dial, keyboard, and remote-control input
// sources into the single ordered, bounded stream the evaluator consumes
// (spec §4.D). Oldest-first eviction keeps the evaluator from ever
// blocking a sensor goroutine: a burst of dial pulses during a busy tick
// loses its oldest members rather than stalling hardware input.
package sensor

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/tapirbug/fernspielapparat/internal/evaluator"
)

// Source is anything that produces evaluator.Input events: a dial
// Decoder, a keyboard fallback, or the remote-control command handler.
type Source <-chan evaluator.Input

// Mux merges any number of Sources into one bounded, drop-oldest output
// channel feeding evaluator.Run's inputs parameter.
type Mux struct {
	out chan evaluator.Input
	log *log.Logger
}

// NewMux creates a Mux with the given output capacity. Capacity should be
// small — a handful of pending inputs is already more than a human caller
// can generate between evaluator ticks.
func NewMux(capacity int, logger *log.Logger) *Mux {
	return &Mux{
		out: make(chan evaluator.Input, capacity),
		log: logger.With("component", "sensor"),
	}
}

// Out is the merged, bounded input stream.
func (m *Mux) Out() <-chan evaluator.Input { return m.out }

// Add starts forwarding src into the mux until ctx is cancelled. Safe to
// call for any number of sources, each run from its own goroutine.
func (m *Mux) Add(ctx context.Context, src Source) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case in, ok := <-src:
				if !ok {
					return
				}
				m.push(in)
			}
		}
	}()
}

// push enqueues in, evicting the oldest pending input if the mux is full
// rather than blocking the source.
func (m *Mux) push(in evaluator.Input) {
	select {
	case m.out <- in:
		return
	default:
	}

	select {
	case dropped := <-m.out:
		m.log.Warn("input queue full, dropping oldest", "dropped_kind", dropped.Kind)
	default:
	}

	select {
	case m.out <- in:
	default:
		m.log.Warn("input queue still full after eviction, dropping newest", "kind", in.Kind)
	}
}
