// Package config parses the CLI surface described in spec §6 into a
// validated Config, using github.com/spf13/pflag the way
// doismellburning-samoyed/cmd/direwolf/main.go does: a pflag.FlagSet built
// on each call, a Parse function returning a plain struct, errors
// reported as spec §7 ConfigError.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Config is the parsed, validated CLI configuration for one run of the
// binary (spec §6).
type Config struct {
	// Phonebook is the path to the phonebook YAML file to load, empty if
	// Demo is set.
	Phonebook string
	// Demo plays the embedded demo phonebook instead of reading Phonebook.
	Demo bool
	// Test runs the hardware self-test instead of the evaluator loop.
	Test bool
	// Serve starts the remote-control WebSocket server.
	Serve bool
	// Listen is the remote-control bind address.
	Listen string
	// Tick is the evaluator tick period.
	Tick time.Duration
	// NoAnnounce disables mDNS self-announcement.
	NoAnnounce bool
}

const defaultListen = "0.0.0.0:38397"
const defaultTick = 15 * time.Millisecond

// Parse builds a Config from args (excluding the program name, as in
// os.Args[1:]). Returns a ConfigError-flavored error on invalid flags or
// argument combinations (spec §7).
func Parse(args []string) (Config, error) {
	fs := pflag.NewFlagSet("fernspielapparat", pflag.ContinueOnError)

	demo := fs.Bool("demo", false, "play the embedded demo phonebook instead of a file")
	test := fs.Bool("test", false, "run the hardware self-test (ring bell, speak a phrase) and exit")
	serve := fs.Bool("serve", false, "start the remote-control websocket server")
	listen := fs.String("listen", defaultListen, "remote-control bind address")
	tick := fs.Duration("tick", defaultTick, "evaluator tick period")
	noAnnounce := fs.Bool("no-announce", false, "disable mDNS self-announcement")

	if err := fs.Parse(args); err != nil {
		return Config{}, &Error{Reason: err.Error()}
	}

	cfg := Config{
		Demo:       *demo,
		Test:       *test,
		Serve:      *serve,
		Listen:     *listen,
		Tick:       *tick,
		NoAnnounce: *noAnnounce,
	}

	positional := fs.Args()
	switch {
	case cfg.Demo && len(positional) > 0:
		return Config{}, &Error{Reason: "--demo and a phonebook path are mutually exclusive"}
	case cfg.Test:
		// --test needs no phonebook at all.
	case cfg.Demo:
		// nothing further required.
	case len(positional) == 1:
		cfg.Phonebook = positional[0]
	case len(positional) == 0:
		return Config{}, &Error{Reason: "a phonebook path is required unless --demo or --test is given"}
	default:
		return Config{}, &Error{Reason: "exactly one phonebook path is allowed"}
	}

	if cfg.Tick <= 0 {
		return Config{}, &Error{Reason: "--tick must be positive"}
	}

	return cfg, nil
}

// Error is a ConfigError (spec §7): invalid flags or arguments, fatal to
// startup with exit code 1.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s", e.Reason)
}
