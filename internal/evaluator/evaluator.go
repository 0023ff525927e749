// Package evaluator implements the phonebook state machine interpreter
// (spec §4.E): it owns all mutable story state, advances on ticks, and
// coordinates actuator activation through the Scheduler it is given.
//
// Grounded on rustyguts-bken/server/internal/core/channel_state.go's
// pattern of one struct owning all mutable state, touched only from a
// single logical owner, with every mutation expressed as a method.
package evaluator

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tapirbug/fernspielapparat/internal/phonebook"
)

// cancelGrace bounds how long a transition waits for the outgoing state's
// actuators to go silent before the incoming state is activated (spec
// §4.E: "wait for actual silence before proceeding — bounded wait, e.g.
// 100 ms").
const cancelGrace = 100 * time.Millisecond

// ActuatorHandle represents one activated state's running actuators.
type ActuatorHandle interface {
	// Completion fires exactly once, when every non-looping actuator
	// activity for this activation has finished (spec §4.A).
	Completion() <-chan struct{}
	// Cancel stops all activity. Idempotent: cancelling an already
	// finished handle is a no-op (spec §4.F).
	Cancel(ctx context.Context) error
}

// Scheduler activates the actuators demanded by a state (spec §4.F).
// SetPhonebook is called whenever the evaluator installs a new compiled
// phonebook (load, remote run, or reset), so the scheduler always resolves
// a state's sound IDs (spec §4.F) against the phonebook currently active
// in the evaluator rather than a stale construction-time one.
type Scheduler interface {
	Activate(state *phonebook.StateSpec) ActuatorHandle
	SetPhonebook(pb *phonebook.Phonebook)
}

// noopHandle is used for states with nothing to activate (spec §8
// boundary property 9): already complete, cancel is a no-op.
type noopHandle struct{ done chan struct{} }

func newNoopHandle() *noopHandle {
	h := &noopHandle{done: make(chan struct{})}
	close(h.done)
	return h
}

func (h *noopHandle) Completion() <-chan struct{}        { return h.done }
func (h *noopHandle) Cancel(_ context.Context) error { return nil }

// Evaluator interprets one phonebook at a time. All fields below this
// point are touched only by the goroutine executing Run — there is no
// mutex because, per spec §5, inputs and commands reach it exclusively
// through channels.
type Evaluator struct {
	log       *log.Logger
	scheduler Scheduler

	pb             *phonebook.Phonebook
	stateID        string
	enteredAt      time.Time
	completionSeen bool
	finishEmitted  bool
	handle         ActuatorHandle
	queue          []Input
}

// New creates an Evaluator with no phonebook loaded (spec §4.H Idle
// state). Run it and send a phonebook on its replace channel to leave
// Idle.
func New(scheduler Scheduler, logger *log.Logger) *Evaluator {
	return &Evaluator{
		scheduler: scheduler,
		log:       logger.With("component", "evaluator"),
	}
}

// Run drives the tick loop until ctx is cancelled. inputs carries sensor
// events (spec §4.D); replace carries hot-swapped phonebooks (spec §4.G
// run); reset re-installs the current phonebook from its initial state
// (spec §4.G reset); events receives every emitted Event in order. Run
// owns all evaluator state for its lifetime.
func (e *Evaluator) Run(
	ctx context.Context,
	tickPeriod time.Duration,
	inputs <-chan Input,
	replace <-chan *phonebook.Phonebook,
	reset <-chan struct{},
	events chan<- Event,
) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return

		case pb := <-replace:
			e.install(pb, time.Now(), emit)

		case <-reset:
			if e.pb != nil {
				e.install(e.pb, time.Now(), emit)
			}

		case in := <-inputs:
			e.queue = append(e.queue, in)
			e.tick(time.Now(), emit)

		case <-ticker.C:
			e.tick(time.Now(), emit)
		}
	}
}

// install atomically swaps in pb, discarding all residual timers and
// playback handles (spec §4.E Replace, §8 invariant 6: never half-applied).
func (e *Evaluator) install(pb *phonebook.Phonebook, now time.Time, emit func(Event)) {
	e.cancelActive()
	e.pb = pb
	e.scheduler.SetPhonebook(pb)
	e.queue = nil
	e.enterState(pb.Initial, now)
	emit(Event{Kind: EventStart, At: now, Initial: pb.Initial})
	e.checkFinish(now, emit)
}

// enterState updates bookkeeping for entering a state and activates its
// actuators. It does not emit Start/Transition — callers do that once
// they've decided which kind of event this entry is.
func (e *Evaluator) enterState(id string, now time.Time) {
	e.stateID = id
	e.enteredAt = now
	e.completionSeen = false
	e.finishEmitted = false

	st, ok := e.pb.State(id)
	if !ok || (len(st.Sounds) == 0 && st.Speech == "") {
		e.handle = newNoopHandle()
		return
	}
	e.handle = e.scheduler.Activate(st)
}

// tick implements spec §4.E's tick contract: at most one transition per
// invocation, checked in order input > end > timeout.
func (e *Evaluator) tick(now time.Time, emit func(Event)) {
	if e.pb == nil {
		return // Idle
	}

	if e.consumeMatchingInput(now, emit) {
		e.checkFinish(now, emit)
		return
	}

	if e.checkEnd(now, emit) {
		e.checkFinish(now, emit)
		return
	}

	if e.checkTimeout(now, emit) {
		e.checkFinish(now, emit)
		return
	}

	e.checkFinish(now, emit)
}

// consumeMatchingInput drains e.queue in arrival order. Inputs with no
// matching transition in the current table are discarded (spec §8 S6);
// the first input that does match is taken as this tick's transition and
// the rest of the queue is left for later ticks.
func (e *Evaluator) consumeMatchingInput(now time.Time, emit func(Event)) bool {
	table := e.pb.TransitionsFor(e.stateID)

	for len(e.queue) > 0 {
		in := e.queue[0]
		e.queue = e.queue[1:]

		var target string
		if in.Kind == "dial" {
			target = table.DialTarget(in.Digit)
		} else {
			target = table.Lookup(in.lookupKey())
		}

		if target == "" {
			continue
		}

		e.takeTransition(target, in.eventReason(), now, emit)
		return true
	}

	return false
}

// checkEnd implements the "end" transition: fires at most once per state
// entry, after every non-looping sound has completed (spec §3 invariant,
// §9 Open Question 1).
func (e *Evaluator) checkEnd(now time.Time, emit func(Event)) bool {
	if e.completionSeen {
		return false
	}

	select {
	case <-e.handle.Completion():
		e.completionSeen = true
	default:
		return false
	}

	table := e.pb.TransitionsFor(e.stateID)
	target := table.Lookup("end")
	if target == "" {
		return false
	}

	e.takeTransition(target, "end", now, emit)
	return true
}

// checkTimeout takes the timeout transition once entered >= seconds ago.
func (e *Evaluator) checkTimeout(now time.Time, emit func(Event)) bool {
	table := e.pb.TransitionsFor(e.stateID)
	if table == nil || table.Timeout == nil {
		return false
	}
	deadline := e.enteredAt.Add(time.Duration(table.Timeout.Seconds * float64(time.Second)))
	if now.Before(deadline) {
		return false
	}
	e.takeTransition(table.Timeout.To, "timeout", now, emit)
	return true
}

// takeTransition cancels the outgoing state's actuators (bounded wait),
// activates the incoming state, and emits Transition.
func (e *Evaluator) takeTransition(target, reason string, now time.Time, emit func(Event)) {
	from := e.stateID
	e.cancelActive()
	e.enterState(target, now)
	emit(Event{Kind: EventTransition, At: now, From: from, To: target, Reason: reason})
}

// checkFinish implements terminal-state entry (spec §4.E): once a
// terminal state's actuators have naturally completed (or immediately if
// it has none), emit Finish exactly once.
func (e *Evaluator) checkFinish(now time.Time, emit func(Event)) {
	if e.finishEmitted {
		return
	}
	st, ok := e.pb.State(e.stateID)
	if !ok || !st.Terminal {
		return
	}
	select {
	case <-e.handle.Completion():
		e.finishEmitted = true
		emit(Event{Kind: EventFinish, At: now, Terminal: e.stateID})
	default:
	}
}

func (e *Evaluator) cancelActive() {
	if e.handle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cancelGrace)
	defer cancel()
	if err := e.handle.Cancel(ctx); err != nil {
		e.log.Warn("actuator cancel did not complete cleanly", "state", e.stateID, "err", err)
	}
	e.handle = nil
}

func (e *Evaluator) shutdown() {
	e.cancelActive()
}

// StateID returns the current state identifier, or "" if Idle.
func (e *Evaluator) StateID() string {
	return e.stateID
}
