package phonebook

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// document is the raw YAML shape described in spec §3/§6. Decoding into
// this struct is the only place gopkg.in/yaml.v3 is used; everything past
// Compile works on the validated Phonebook type.
type document struct {
	Initial     string                      `yaml:"initial"`
	States      map[string]stateDoc         `yaml:"states"`
	Sounds      map[string]soundDoc         `yaml:"sounds"`
	Transitions map[string]transitionDoc    `yaml:"transitions"`
}

type stateDoc struct {
	Sounds []string       `yaml:"sounds"`
	Speech string         `yaml:"speech"`
	Lights map[string]int `yaml:"lights"`
}

type soundDoc struct {
	File        string   `yaml:"file"`
	Speech      string   `yaml:"speech"`
	Loop        bool     `yaml:"loop"`
	Volume      *float64 `yaml:"volume"`
	StartOffset float64  `yaml:"start_offset"`
}

type timeoutDoc struct {
	Seconds float64 `yaml:"seconds"`
	To      string  `yaml:"to"`
}

// transitionDoc captures the union described in spec §3: a handful of
// well-known keys plus free-form reason keys. Timeout is a pointer so an
// absent timeout stays nil.
type transitionDoc struct {
	End     string      `yaml:"end"`
	Timeout *timeoutDoc `yaml:"timeout"`
	Dial    map[string]string `yaml:"dial"`
	PickUp  string      `yaml:"pick_up"`
	HangUp  string      `yaml:"hang_up"`
	// Extra captures every other root key via yaml.v3's inline mechanism so
	// user-defined reason keys aren't lost.
	Extra map[string]string `yaml:",inline"`
}

// Parse decodes a single phonebook YAML document (from a file's bytes or
// from a remote run command's nested payload, spec §6) without validating
// it yet.
func Parse(data []byte) (*document, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}
	return &doc, nil
}

// Compile validates a parsed document against spec §3's invariants and
// produces an immutable Phonebook. This is the loader's job; the YAML
// syntax itself is the external collaborator's problem (spec §1), ours
// starts here.
func Compile(doc *document) (*Phonebook, error) {
	pb := &Phonebook{
		States:      make(map[string]*StateSpec, len(doc.States)),
		Sounds:      make(map[string]*SoundSpec, len(doc.Sounds)),
		Transitions: make(map[string]*TransitionTable, len(doc.Transitions)),
		DataBlobs:   make(map[string][]byte),
	}

	for id, sd := range doc.States {
		pb.States[id] = &StateSpec{
			ID:     id,
			Sounds: append([]string(nil), sd.Sounds...),
			Speech: sd.Speech,
			Lights: sd.Lights,
		}
	}

	for id, snd := range doc.Sounds {
		if snd.File == "" && snd.Speech == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("sound %q: must set file or speech", id)}
		}
		if snd.File != "" && snd.Speech != "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("sound %q: file and speech are mutually exclusive", id)}
		}
		file, err := resolveDataURI(pb, id, snd.File)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("sound %q: %v", id, err)}
		}
		pb.Sounds[id] = &SoundSpec{
			ID:          id,
			File:        file,
			Speech:      snd.Speech,
			Loop:        snd.Loop,
			Volume:      snd.Volume,
			StartOffset: snd.StartOffset,
		}
	}

	for id, td := range doc.Transitions {
		table := &TransitionTable{
			End:    td.End,
			PickUp: td.PickUp,
			HangUp: td.HangUp,
		}
		if td.Timeout != nil {
			table.Timeout = &TimeoutSpec{Seconds: td.Timeout.Seconds, To: td.Timeout.To}
		}
		if len(td.Dial) > 0 {
			table.Dial = make(map[string]string, len(td.Dial))
			for k, v := range td.Dial {
				table.Dial[k] = v
			}
		}
		if len(td.Extra) > 0 {
			table.Reasons = make(map[string]string, len(td.Extra))
			for k, v := range td.Extra {
				switch k {
				case "end", "timeout", "dial", "pick_up", "hang_up":
					// already handled above
				default:
					table.Reasons[k] = v
				}
			}
		}
		pb.Transitions[id] = table
	}

	if err := validate(pb); err != nil {
		return nil, err
	}

	markTerminal(pb)

	pb.Initial = doc.Initial
	if pb.Initial == "" {
		pb.Initial = firstStateID(pb)
	}
	if _, ok := pb.States[pb.Initial]; !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("initial state %q is not declared", pb.Initial)}
	}

	return pb, nil
}

// validate checks spec §3's invariant "every transition target must
// reference a declared state" and that sound references from states are
// declared.
func validate(pb *Phonebook) error {
	for id, st := range pb.States {
		for _, sid := range st.Sounds {
			if _, ok := pb.Sounds[sid]; !ok {
				return &ValidationError{Reason: fmt.Sprintf("state %q: undeclared sound %q", id, sid)}
			}
		}
	}

	for from, table := range pb.Transitions {
		if _, ok := pb.States[from]; !ok {
			return &ValidationError{Reason: fmt.Sprintf("transitions declared for undeclared state %q", from)}
		}
		targets := allTargets(table)
		for _, target := range targets {
			if _, ok := pb.States[target]; !ok {
				return &ValidationError{Reason: fmt.Sprintf("state %q: transition target %q is not declared", from, target)}
			}
		}
	}

	return nil
}

func allTargets(t *TransitionTable) []string {
	var targets []string
	if t.End != "" {
		targets = append(targets, t.End)
	}
	if t.Timeout != nil && t.Timeout.To != "" {
		targets = append(targets, t.Timeout.To)
	}
	if t.PickUp != "" {
		targets = append(targets, t.PickUp)
	}
	if t.HangUp != "" {
		targets = append(targets, t.HangUp)
	}
	for _, v := range t.Dial {
		targets = append(targets, v)
	}
	for _, v := range t.Reasons {
		targets = append(targets, v)
	}
	return targets
}

// markTerminal implements spec §9 Open Question 2: a state is terminal
// when it has no outgoing transitions at all.
func markTerminal(pb *Phonebook) {
	for id, st := range pb.States {
		table, ok := pb.Transitions[id]
		st.Terminal = !ok || len(allTargets(table)) == 0
	}
}

// firstStateID picks the lexicographically first state when no initial is
// declared (spec §3).
func firstStateID(pb *Phonebook) string {
	ids := make([]string, 0, len(pb.States))
	for id := range pb.States {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// resolveDataURI decodes a data: URI sound reference once at load time
// (spec §6). The decoded bytes are stored on pb.DataBlobs and the
// SoundSpec.File field becomes a synthetic "data:<id>" reference. The audio
// player does not read DataBlobs: it hands "data:<id>" to its backend as a
// path, which the file backend cannot open, so such a sound is treated as
// unavailable and completes immediately.
func resolveDataURI(pb *Phonebook, soundID, ref string) (string, error) {
	if !strings.HasPrefix(ref, "data:") {
		return ref, nil
	}
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return "", fmt.Errorf("malformed data uri")
	}
	meta := ref[len("data:"):comma]
	payload := ref[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return "", fmt.Errorf("data uri must be base64-encoded")
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode data uri: %w", err)
	}
	pb.DataBlobs[soundID] = decoded
	return "data:" + soundID, nil
}
