// Package remote implements the remote-control surface (spec §4.G): a
// WebSocket endpoint negotiating the fernspielctl subprotocol, accepting
// run/dial/reset commands as YAML text frames, and broadcasting every
// evaluator event to all connected clients.
//
// Grounded on rustyguts-bken/server/internal/ws/handler.go's
// hello/session/broadcast shape, generalized from a JSON chat protocol to
// YAML command/event frames, and rustyguts-bken/server/internal/httpapi's
// Echo application wiring for the surrounding HTTP server.
package remote

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// Subprotocol is the single WebSocket subprotocol this server accepts
// (spec §4.G). Connections that don't negotiate it are closed right after
// the upgrade.
const Subprotocol = "fernspielctl"

// Invoke kinds a client may send (spec §6: "invoke: run|dial|reset").
const (
	CommandRun   = "run"
	CommandDial  = "dial"
	CommandReset = "reset"
)

// Command is one inbound YAML text frame: `{invoke: ..., with: ...,
// uuid?: ...}` (spec §6). With is kept as a raw yaml.Node because its
// shape depends on Invoke: a nested phonebook document for "run", a
// `[0-9hp]+` string for "dial", absent for "reset".
type Command struct {
	Invoke string `yaml:"invoke"`
	// With carries the invoke-specific payload. Zero value (Kind == 0)
	// means the frame had no "with" key.
	With yaml.Node `yaml:"with"`
	// UUID optionally correlates a command with the events it produces;
	// stored but not otherwise interpreted by the server (spec §6).
	UUID string `yaml:"uuid,omitempty"`
}

// Outbound event kinds mirror evaluator.EventKind.
const (
	EventStart      = "start"
	EventTransition = "transition"
	EventFinish     = "finish"
)

// Frame is one outbound YAML text frame forwarding an evaluator event
// (spec §6).
type Frame struct {
	Type     string `yaml:"type"`
	Initial  string `yaml:"initial,omitempty"`
	From     string `yaml:"from,omitempty"`
	To       string `yaml:"to,omitempty"`
	Reason   string `yaml:"reason,omitempty"`
	Terminal string `yaml:"terminal,omitempty"`
}

// DecodeCommand parses one inbound text frame, rejecting root keys other
// than invoke/with/uuid (spec §6: "Unknown keys at the root ... →
// connection closed orderly").
func DecodeCommand(data []byte) (Command, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cmd Command
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// EncodeFrame serializes one outbound frame.
func EncodeFrame(f Frame) ([]byte, error) {
	return yaml.Marshal(f)
}
