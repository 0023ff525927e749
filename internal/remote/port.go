package remote

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tapirbug/fernspielapparat/internal/evaluator"
	"github.com/tapirbug/fernspielapparat/internal/phonebook"
)

// EvaluatorPort is the narrow write side of the evaluator's channels that
// remote commands are allowed to touch (spec §4.G run/dial/reset). Kept
// separate from the full Evaluator so the remote package can't reach into
// anything else.
type EvaluatorPort struct {
	Replace chan<- *phonebook.Phonebook
	Inputs  chan<- evaluator.Input
	Reset   chan<- struct{}
}

// Apply executes one decoded Command against the port. A non-nil error
// means the frame was malformed; per spec §4.G/§6 the caller closes the
// connection rather than replying with it.
func (p EvaluatorPort) Apply(cmd Command) error {
	switch cmd.Invoke {
	case CommandRun:
		return p.applyRun(cmd)

	case CommandDial:
		return p.applyDial(cmd)

	case CommandReset:
		p.Reset <- struct{}{}
		return nil

	default:
		return fmt.Errorf("unknown invoke %q", cmd.Invoke)
	}
}

// applyRun decodes With as a nested phonebook document and replaces the
// active phonebook (spec §6: "invoke: run, with: <phonebook-yaml-
// string-or-object>"). With may itself be a YAML mapping (the phonebook
// inlined directly) or a plain string holding the phonebook's YAML text;
// either way the bytes handed to phonebook.FromBytes must be the
// phonebook document itself, not a re-serialization of a string scalar.
func (p EvaluatorPort) applyRun(cmd Command) error {
	if cmd.With.Kind == 0 {
		return fmt.Errorf("run: missing with")
	}

	var raw []byte
	if cmd.With.Kind == yaml.ScalarNode {
		var text string
		if err := cmd.With.Decode(&text); err != nil {
			return fmt.Errorf("run: %w", err)
		}
		raw = []byte(text)
	} else {
		marshaled, err := yaml.Marshal(&cmd.With)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		raw = marshaled
	}

	pb, err := phonebook.FromBytes(raw)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	p.Replace <- pb
	return nil
}

// applyDial decodes With as a "<[0-9hp]+>" string and pushes each
// character as its own InputEvent in order (spec §4.G: "push each
// character as a synthetic InputEvent to the multiplexer, in order").
func (p EvaluatorPort) applyDial(cmd Command) error {
	if cmd.With.Kind == 0 {
		return fmt.Errorf("dial: missing with")
	}
	var digits string
	if err := cmd.With.Decode(&digits); err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if digits == "" {
		return fmt.Errorf("dial: empty")
	}
	for _, ch := range digits {
		switch {
		case ch >= '0' && ch <= '9':
			p.Inputs <- evaluator.Input{Kind: "dial", Digit: string(ch)}
		case ch == 'h':
			p.Inputs <- evaluator.Input{Kind: "hang_up"}
		case ch == 'p':
			p.Inputs <- evaluator.Input{Kind: "pick_up"}
		default:
			return fmt.Errorf("dial: invalid character %q", ch)
		}
	}
	return nil
}
