package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/tapirbug/fernspielapparat/internal/audio"
	"github.com/tapirbug/fernspielapparat/internal/i2cbus"
)

// ttsCandidates lists the external TTS backends tried in order (spec §4.A,
// §9). espeak-ng writes directly to a file; flite and say stream WAV to
// stdout over a pty.
func ttsCandidates() []audio.TTSCommand {
	return []audio.TTSCommand{
		{Name: "espeak-ng", Path: "espeak-ng", OutputFlag: "-w"},
		{Name: "flite", Path: "flite", Args: []string{"-o", "/dev/stdout"}},
		{Name: "say", Path: "say"},
	}
}

func newSynthesizer(logger *log.Logger) *audio.ChainSynthesizer {
	workDir := filepath.Join(os.TempDir(), "fernspielapparat-speech")
	_ = os.MkdirAll(workDir, 0o755)
	return audio.NewChainSynthesizer(ttsCandidates(), workDir, logger)
}

// newAudioBackend opens the default PortAudio output device. If no device
// is available, Player treats ErrUnavailable as immediate completion
// rather than a fatal error (spec §4.A Failure modes), so a nil-ish
// "unavailable" backend is a legitimate runtime shape, not just a test
// fake.
func newAudioBackend(logger *log.Logger) audio.Backend {
	backend, err := audio.NewPortAudioBackend(audio.WAVDecoder{}, 44100, 1)
	if err != nil {
		logger.Warn("audio output unavailable, sounds will be skipped", "err", err)
		return unavailableBackend{}
	}
	return backend
}

// unavailableBackend always reports ErrUnavailable, matching the shape a
// failed NewPortAudioBackend would otherwise have produced.
type unavailableBackend struct{}

func (unavailableBackend) Play(ctx context.Context, path string, loop bool) (<-chan struct{}, func(), error) {
	return nil, nil, audio.ErrUnavailable
}

func openI2C() (i2cbus.Bus, error) {
	return i2cbus.Open(1)
}
