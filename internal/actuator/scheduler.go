// Package actuator implements evaluator.Scheduler (spec §4.F): given a
// state, activate its audio group, light levels, and any ring requests its
// speech produces, in parallel; on exit cancel everything cleanly.
//
// Grounded on rustyguts-bken/server/internal/core/channel_state.go's
// single-owner activation pattern, generalized from "one active channel
// state" to "one active actuator group spanning three independent output
// devices".
package actuator

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tapirbug/fernspielapparat/internal/audio"
	"github.com/tapirbug/fernspielapparat/internal/bell"
	"github.com/tapirbug/fernspielapparat/internal/evaluator"
	"github.com/tapirbug/fernspielapparat/internal/phonebook"
)

// LightSink forwards a state's opaque light levels to whatever is
// listening (spec §3: "opaque to the core; forwarded to a light sink if
// present"). The core never interprets the names or values.
type LightSink interface {
	SetLevels(levels map[string]int)
}

// noopLightSink discards every level; used when no sink is configured.
type noopLightSink struct{}

func (noopLightSink) SetLevels(map[string]int) {}

// ringGrace is the deadline given to each ring request the scheduler
// makes. It sits just above internal/bell's 2s hardware safety cap, so a
// ring normally ends on its own duration or that cap first.
const ringGrace = 2*time.Second + 200*time.Millisecond

// Scheduler composes an audio.Player, a bell.Driver, and a LightSink into
// the single evaluator.Scheduler the evaluator drives (spec §4.F).
type Scheduler struct {
	player *audio.Player
	bell   *bell.Driver
	lights LightSink
	pb     *phonebook.Phonebook
	log    *log.Logger
}

// New builds a Scheduler. lights may be nil, in which case light levels
// are silently discarded.
func New(player *audio.Player, bellDriver *bell.Driver, lights LightSink, pb *phonebook.Phonebook, logger *log.Logger) *Scheduler {
	if lights == nil {
		lights = noopLightSink{}
	}
	return &Scheduler{
		player: player,
		bell:   bellDriver,
		lights: lights,
		pb:     pb,
		log:    logger.With("component", "actuator"),
	}
}

// SetPhonebook updates the phonebook used to resolve sound IDs referenced
// by a StateSpec (spec §4.E Replace swaps this alongside the evaluator's
// own phonebook reference).
func (s *Scheduler) SetPhonebook(pb *phonebook.Phonebook) {
	s.pb = pb
}

// Handle is the evaluator.ActuatorHandle for one activated state: the
// union of its audio group and any bell rings its speech requested.
type Handle struct {
	audio    *audio.Handle
	cancel   context.CancelFunc
	bellDone chan struct{}
}

// Completion mirrors the underlying audio group's completion.
func (h *Handle) Completion() <-chan struct{} { return h.audio.Completion() }

// Cancel stops audio playback and waits (briefly) for any in-flight ring
// to finish, since the bell relay cannot be interrupted mid-ring without
// extra hardware (spec §4.F idempotent cancel).
func (h *Handle) Cancel(ctx context.Context) error {
	err := h.audio.Cancel(ctx)
	h.cancel()
	select {
	case <-h.bellDone:
	case <-ctx.Done():
	}
	return err
}

// Activate implements evaluator.Scheduler. It resolves state's sound IDs
// against the current phonebook, starts playback, forwards light levels
// to the sink, and spawns a goroutine that rings the bell for every
// RingCue the speech parser produced.
func (s *Scheduler) Activate(state *phonebook.StateSpec) evaluator.ActuatorHandle {
	s.lights.SetLevels(state.Lights)

	group := audio.Group{InlineSpeech: state.Speech}
	for _, id := range state.Sounds {
		if snd, ok := s.pb.Sound(id); ok {
			group.Items = append(group.Items, snd)
		} else {
			s.log.Warn("state references undeclared sound, skipping", "state", state.ID, "sound", id)
		}
	}

	actx, cancel := context.WithCancel(context.Background())
	ah := s.player.Start(actx, group)

	bellDone := make(chan struct{})
	go s.ringOnCues(actx, ah.Rings(), bellDone)

	return &Handle{audio: ah, cancel: cancel, bellDone: bellDone}
}

func (s *Scheduler) ringOnCues(ctx context.Context, cues <-chan audio.RingCue, done chan struct{}) {
	defer close(done)
	const ringDuration = 300 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-cues:
			if !ok {
				return
			}
			rctx, cancel := context.WithTimeout(context.Background(), ringGrace)
			if err := s.bell.Ring(rctx, ringDuration); err != nil {
				s.log.Warn("bell ring failed", "err", err)
			}
			cancel()
		}
	}
}
