package evaluator

import "time"

// EventKind distinguishes the three observable evaluator events (spec §4.H
// state diagram / §6 wire events).
type EventKind string

const (
	EventStart      EventKind = "start"
	EventTransition EventKind = "transition"
	EventFinish     EventKind = "finish"
)

// Event is emitted by the evaluator in evaluator-emission order (spec §5).
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind
	At   time.Time

	Initial string // EventStart

	From   string // EventTransition
	To     string // EventTransition
	Reason string // EventTransition: "end", "timeout", "dial:<digit>", "pick_up", "hang_up", or a user-defined key

	Terminal string // EventFinish
}

// Input is a single sensor or remote-originated occurrence fed to the
// evaluator by the sensor multiplexer (spec §4.D). Kind is one of "dial",
// "pick_up", "hang_up", or a user-defined reason key; Digit is set only
// for Kind == "dial".
type Input struct {
	Kind  string
	Digit string
	At    time.Time
}

// lookupKey renders the transition-table lookup key for this input;
// eventReason renders the human-readable event reason.
func (in Input) lookupKey() string {
	if in.Kind == "dial" {
		return "dial"
	}
	return in.Kind
}

func (in Input) eventReason() string {
	if in.Kind == "dial" {
		return "dial:" + in.Digit
	}
	return in.Kind
}
