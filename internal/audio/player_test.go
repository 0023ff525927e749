package audio

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapirbug/fernspielapparat/internal/phonebook"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
}

// fakeBackend plays every path instantly unless told to hang, and records
// every path it was asked to play.
type fakeBackend struct {
	played  []string
	hangOn  map[string]bool
	unavail map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{hangOn: map[string]bool{}, unavail: map[string]bool{}}
}

func (b *fakeBackend) Play(ctx context.Context, path string, loop bool) (<-chan struct{}, func(), error) {
	b.played = append(b.played, path)
	if b.unavail[path] {
		return nil, nil, ErrUnavailable
	}

	done := make(chan struct{})
	stop := make(chan struct{})
	cancel := func() {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}

	if b.hangOn[path] && !loop {
		go func() {
			<-stop
		}()
		return done, cancel, nil
	}

	if loop {
		go func() {
			<-stop
		}()
		return done, cancel, nil
	}

	go func() {
		select {
		case <-time.After(5 * time.Millisecond):
			close(done)
		case <-stop:
		}
	}()
	return done, cancel, nil
}

type fakeSynth struct {
	clip Clip
	err  error
}

func (s *fakeSynth) Synthesize(_ context.Context, _ string) (Clip, error) {
	return s.clip, s.err
}

func TestPlayerCompletesAfterAllNonLoopingItemsFinish(t *testing.T) {
	backend := newFakeBackend()
	p := NewPlayer(backend, &fakeSynth{}, testLogger())

	group := Group{Items: []*phonebook.SoundSpec{
		{File: "a.wav"},
		{File: "b.wav"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := p.Start(ctx, group)
	select {
	case <-h.Completion():
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
	assert.ElementsMatch(t, []string{"a.wav", "b.wav"}, backend.played)
}

func TestPlayerNeverCompletesWithOnlyLoopingItems(t *testing.T) {
	backend := newFakeBackend()
	p := NewPlayer(backend, &fakeSynth{}, testLogger())

	group := Group{Items: []*phonebook.SoundSpec{
		{File: "siren.wav", Loop: true},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := p.Start(ctx, group)
	select {
	case <-h.Completion():
		t.Fatal("completion fired for a looping-only group")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlayerEmptyGroupCompletesImmediately(t *testing.T) {
	p := NewPlayer(newFakeBackend(), &fakeSynth{}, testLogger())
	h := p.Start(context.Background(), Group{})
	select {
	case <-h.Completion():
	case <-time.After(50 * time.Millisecond):
		t.Fatal("empty group should complete immediately")
	}
}

func TestPlayerCancelStopsPlaybackAndIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	backend.hangOn["hang.wav"] = true
	p := NewPlayer(backend, &fakeSynth{}, testLogger())

	group := Group{Items: []*phonebook.SoundSpec{{File: "hang.wav"}}}
	h := p.Start(context.Background(), group)

	require.NoError(t, h.Cancel(context.Background()))
	require.NoError(t, h.Cancel(context.Background()))
}

func TestPlayerUnavailableBackendCompletesImmediately(t *testing.T) {
	backend := newFakeBackend()
	backend.unavail["missing.wav"] = true
	p := NewPlayer(backend, &fakeSynth{}, testLogger())

	h := p.Start(context.Background(), Group{Items: []*phonebook.SoundSpec{{File: "missing.wav"}}})
	select {
	case <-h.Completion():
	case <-time.After(time.Second):
		t.Fatal("unavailable backend should be treated as immediate completion")
	}
}

func TestPlayerInlineSpeechSynthesizesAndPlays(t *testing.T) {
	backend := newFakeBackend()
	synth := &fakeSynth{clip: Clip{Path: "spoken.wav"}}
	p := NewPlayer(backend, synth, testLogger())

	h := p.Start(context.Background(), Group{InlineSpeech: "Ready<ring>set"})
	select {
	case <-h.Completion():
	case <-time.After(time.Second):
		t.Fatal("completion never fired for inline speech")
	}
	assert.Contains(t, backend.played, "spoken.wav")

	select {
	case cue := <-h.Rings():
		assert.Equal(t, time.Duration(len("Ready"))*charDuration, cue.Offset)
	case <-time.After(time.Second):
		t.Fatal("ring cue was never forwarded")
	}
}

func TestPlayerSynthesisFailureSubstitutesSilence(t *testing.T) {
	backend := newFakeBackend()
	synth := &fakeSynth{err: assertErr{}}
	p := NewPlayer(backend, synth, testLogger())

	h := p.Start(context.Background(), Group{InlineSpeech: "hi"})
	select {
	case <-h.Completion():
	case <-time.After(time.Second):
		t.Fatal("silence substitution should still complete")
	}
	assert.Empty(t, backend.played, "silence substitution must not touch the playback backend")
}

type assertErr struct{}

func (assertErr) Error() string { return "synthesis unavailable" }
