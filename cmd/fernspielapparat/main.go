// Command fernspielapparat plays a phonebook: a declarative YAML
// interactive story for a retrofitted telephone exhibit (spec §1, §6).
//
// Grounded on rustyguts-bken/server/main.go's shape: parse flags,
// construct every worker, wire callbacks/channels between them, start
// goroutines, then block on signal-driven shutdown via context
// cancellation.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tapirbug/fernspielapparat/internal/actuator"
	"github.com/tapirbug/fernspielapparat/internal/audio"
	"github.com/tapirbug/fernspielapparat/internal/bell"
	"github.com/tapirbug/fernspielapparat/internal/config"
	"github.com/tapirbug/fernspielapparat/internal/demo"
	"github.com/tapirbug/fernspielapparat/internal/dial"
	"github.com/tapirbug/fernspielapparat/internal/evaluator"
	"github.com/tapirbug/fernspielapparat/internal/hwprobe"
	"github.com/tapirbug/fernspielapparat/internal/phonebook"
	"github.com/tapirbug/fernspielapparat/internal/remote"
	"github.com/tapirbug/fernspielapparat/internal/sensor"
)

// shutdownGrace is how long run sleeps after a shutdown signal so workers
// can unwind before main exits; run does not wait for the workers
// themselves (spec §4.H, §6).
const shutdownGrace = 2 * time.Second

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if cfg.Test {
		os.Exit(runSelfTest(logger))
	}

	pb, err := loadPhonebook(cfg, logger)
	if err != nil {
		logger.Error("invalid phonebook", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, pb, logger); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(2)
	}
}

func run(cfg config.Config, pb *phonebook.Phonebook, logger *log.Logger) error {
	bellDriver := openBell(logger)
	defer bellDriver.Close()

	player := audio.NewPlayer(newAudioBackend(logger), newSynthesizer(logger), logger)
	sched := actuator.New(player, bellDriver, nil, pb, logger)

	eval := evaluator.New(sched, logger)

	inputs := make(chan evaluator.Input, 16)
	replace := make(chan *phonebook.Phonebook, 1)
	reset := make(chan struct{}, 1)
	events := make(chan evaluator.Event, 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	remoteInputs := make(chan evaluator.Input, 16)
	mux := sensor.NewMux(32, logger)
	wireSensors(ctx, cfg, mux, logger)
	mux.Add(ctx, sensor.Source(remoteInputs))
	go forwardInputs(ctx, mux.Out(), inputs)

	go eval.Run(ctx, cfg.Tick, inputs, replace, reset, events)
	replace <- pb

	if cfg.Serve {
		port := remote.EvaluatorPort{Replace: replace, Inputs: remoteInputs, Reset: reset}
		srv := remote.New(cfg.Listen, port, !cfg.NoAnnounce, logger)
		go srv.BroadcastEvents(ctx, events)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("remote server stopped", "err", err)
			}
		}()
	} else {
		go drainEvents(ctx, events, logger)
	}

	<-ctx.Done()
	time.Sleep(shutdownGrace)
	return nil
}

func loadPhonebook(cfg config.Config, logger *log.Logger) (*phonebook.Phonebook, error) {
	if cfg.Demo {
		logger.Info("playing embedded demo phonebook")
		return demo.Load()
	}
	logger.Info("loading phonebook", "path", cfg.Phonebook)
	return phonebook.Load(cfg.Phonebook)
}

func openBell(logger *log.Logger) *bell.Driver {
	if !hwprobe.HasSubsystem("gpio") {
		logger.Warn("no gpio hardware detected, bell is a no-op")
		return bell.NewNoop(logger)
	}
	d, err := bell.New("gpiochip0", 17, logger)
	if err != nil {
		logger.Warn("failed to open bell gpio line, falling back to no-op", "err", err)
		return bell.NewNoop(logger)
	}
	return d
}

func wireSensors(ctx context.Context, cfg config.Config, mux *sensor.Mux, logger *log.Logger) {
	if hwprobe.HasSubsystem("i2c-dev") {
		bus, err := openI2C()
		if err != nil {
			logger.Warn("failed to open i2c bus, falling back to keyboard", "err", err)
			wireKeyboard(ctx, mux, logger)
			return
		}
		decoder := dial.NewDecoder(bus, 0x20, 0x00, 0x01, 0x02, logger)
		mux.Add(ctx, sensor.FromDial(decoder.Run(ctx, 5*time.Millisecond)))
		return
	}
	logger.Warn("no i2c hardware detected, falling back to keyboard")
	wireKeyboard(ctx, mux, logger)
}

func wireKeyboard(ctx context.Context, mux *sensor.Mux, logger *log.Logger) {
	kb, err := dial.OpenKeyboard("/dev/tty", logger)
	if err != nil {
		logger.Warn("keyboard fallback unavailable", "err", err)
		return
	}
	go func() {
		<-ctx.Done()
		kb.Close()
	}()
	mux.Add(ctx, sensor.FromDial(kb.Run(ctx)))
}

func forwardInputs(ctx context.Context, src <-chan evaluator.Input, dst chan<- evaluator.Input) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-src:
			select {
			case dst <- in:
			case <-ctx.Done():
				return
			}
		}
	}
}

func drainEvents(ctx context.Context, events <-chan evaluator.Event, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			logger.Info("event", "kind", ev.Kind, "from", ev.From, "to", ev.To, "reason", ev.Reason)
		}
	}
}

// runSelfTest implements the --test diagnostic mode (spec §9
// "Supplemented features"): ring the bell briefly and synthesize one
// short phrase, independent of any loaded phonebook. Returns a process
// exit code.
func runSelfTest(logger *log.Logger) int {
	bellDriver := openBell(logger)
	defer bellDriver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("self-test: ringing bell for 1s")
	if err := bellDriver.Ring(ctx, time.Second); err != nil {
		logger.Error("self-test: bell ring failed", "err", err)
		return 1
	}

	logger.Info("self-test: synthesizing test phrase")
	synth := newSynthesizer(logger)
	clip, err := synth.Synthesize(ctx, "Self test complete.")
	if err != nil {
		logger.Error("self-test: speech synthesis failed", "err", err)
		return 1
	}
	logger.Info("self-test: synthesized clip", "path", clip.Path)

	return 0
}
