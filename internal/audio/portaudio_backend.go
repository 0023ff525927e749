package audio

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// decoder turns a file on disk into a stream of interleaved float32
// samples. Kept as an interface (rather than calling a concrete decoder
// package directly) so tests can substitute a fake without touching real
// files, mirroring rustyguts-bken/client/audio.go's opusEncoder seam.
type decoder interface {
	// Open prepares path for reading. sampleRate and channels give the
	// format of the output stream the samples are written to.
	Open(path string, sampleRate float64, channels int) (frameReader, error)
}

// frameReader yields one buffer of interleaved samples per call. io.EOF
// (wrapped) signals natural end of stream.
type frameReader interface {
	Read(buf []float32) (n int, err error)
	Close() error
}

// PortAudioBackend plays decoded PCM through the default output device
// (spec §4.A). Grounded on rustyguts-bken/client/audio.go's paStream
// lifecycle (Open/Start/Write/Stop/Close via defer, one stream per active
// clip).
type PortAudioBackend struct {
	dec        decoder
	sampleRate float64
	channels   int

	mu      sync.Mutex
	started bool
}

// NewPortAudioBackend initializes the PortAudio library once for the
// process. Returns ErrUnavailable if no audio device can be opened, which
// the Player treats as immediate completion rather than a fatal error
// (spec §4.A Failure modes).
func NewPortAudioBackend(dec decoder, sampleRate float64, channels int) (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &PortAudioBackend{dec: dec, sampleRate: sampleRate, channels: channels, started: true}, nil
}

// Close releases the PortAudio library. Call once at process shutdown.
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	return portaudio.Terminate()
}

// Play decodes path and streams it to the default output device, looping
// if requested, until ctx is cancelled or the clip ends naturally.
func (b *PortAudioBackend) Play(ctx context.Context, path string, loop bool) (<-chan struct{}, func(), error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	reader, err := b.dec.Open(path, b.sampleRate, b.channels)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	buf := make([]float32, 512*b.channels)
	stream, err := portaudio.OpenDefaultStream(0, b.channels, b.sampleRate, len(buf)/b.channels, &buf)
	if err != nil {
		reader.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		reader.Close()
		stream.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	done := make(chan struct{})
	playCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(done)
		defer stream.Close()
		defer stream.Stop()
		defer reader.Close()

		for {
			select {
			case <-playCtx.Done():
				return
			default:
			}

			n, err := reader.Read(buf)
			if n > 0 {
				if werr := stream.Write(); werr != nil {
					return
				}
			}
			if err != nil {
				if !loop {
					return
				}
				reopened, rerr := b.dec.Open(path, b.sampleRate, b.channels)
				if rerr != nil {
					return
				}
				reader.Close()
				reader = reopened
			}
		}
	}()

	return done, cancel, nil
}
