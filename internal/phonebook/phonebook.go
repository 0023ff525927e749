// Package phonebook holds the declarative story format played by the
// evaluator: states, sounds and the transitions between them.
package phonebook

import "fmt"

// Phonebook is an immutable, validated story graph. Once compiled it is
// never mutated — replacing the active phonebook means building a new one
// and swapping the reference (spec §3 "Lifecycle").
type Phonebook struct {
	Initial     string
	States      map[string]*StateSpec
	Sounds      map[string]*SoundSpec
	Transitions map[string]*TransitionTable
	// DataBlobs holds sound bytes that were embedded as data: URIs,
	// decoded once at load time (spec §6). Keyed by the synthetic id
	// referenced from SoundSpec.File as "data:<id>".
	DataBlobs map[string][]byte
}

// StateSpec describes the actuator activity for one node of the story
// graph.
type StateSpec struct {
	ID     string
	Sounds []string // sound identifiers, order-preserving
	Speech string    // inline speech text, alternative to Sounds
	Lights map[string]int // name -> 0..100, opaque to the core
	// Terminal is derived at compile time: true when the state has no
	// outgoing transitions (spec §9 Open Question 2).
	Terminal bool
}

// SoundSpec is a single playable unit: exactly one of File or Speech is
// set.
type SoundSpec struct {
	ID          string
	File        string
	Speech      string
	Loop        bool
	Volume      *float64
	StartOffset float64
}

// IsSpeech reports whether this sound is synthesized rather than a file.
func (s *SoundSpec) IsSpeech() bool {
	return s.Speech != "" && s.File == ""
}

// TransitionTable is the union of ways a state can hand off to another.
type TransitionTable struct {
	End     string            // taken when all non-looping sounds complete
	Timeout *TimeoutSpec
	Dial    map[string]string // "0".."9" -> target
	PickUp  string
	HangUp  string
	Reasons map[string]string // arbitrary user-defined event -> target
}

// TimeoutSpec is a duration-based transition.
type TimeoutSpec struct {
	Seconds float64
	To      string
}

// Lookup resolves the target state for an arbitrary reason key, checking
// the well-known fields before the free-form Reasons map. Returns "" if
// there is no such transition.
func (t *TransitionTable) Lookup(reason string) string {
	if t == nil {
		return ""
	}
	switch reason {
	case "end":
		return t.End
	case "pick_up":
		return t.PickUp
	case "hang_up":
		return t.HangUp
	}
	if d, ok := t.Reasons[reason]; ok {
		return d
	}
	return ""
}

// DialTarget resolves the target state for a dial digit, or "" if this
// table has no matching dial transition (spec §8 S6 "unknown dial digit").
func (t *TransitionTable) DialTarget(digit string) string {
	if t == nil || t.Dial == nil {
		return ""
	}
	return t.Dial[digit]
}

// State looks up a state by ID.
func (p *Phonebook) State(id string) (*StateSpec, bool) {
	s, ok := p.States[id]
	return s, ok
}

// Sound looks up a sound by ID.
func (p *Phonebook) Sound(id string) (*SoundSpec, bool) {
	s, ok := p.Sounds[id]
	return s, ok
}

// TransitionsFor returns the transition table declared for a state, or nil
// if the state declares none (and is therefore terminal).
func (p *Phonebook) TransitionsFor(id string) *TransitionTable {
	return p.Transitions[id]
}

// ValidationError reports a phonebook that failed compile-time checks
// (spec §3 Invariants, §7 ConfigError).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("phonebook: %s", e.Reason)
}
