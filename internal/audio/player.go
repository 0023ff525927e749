// Package audio implements the audio/speech actuator (spec §4.A): it
// plays at most one group of sounds at a time, synthesizes speech through
// an external TTS process, and parses <ring>/emphasis/pause markers out of
// speech text before handing it to synthesis.
//
// Grounded on rustyguts-bken/client/audio.go's pattern of interface-backed
// playback streams (paStream/opusEncoder) kept swappable for tests, and
// doismellburning-samoyed/src/cm108.go + ptt.go's start/cancel/safety-timer
// shape for a single active hardware actuator.
package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tapirbug/fernspielapparat/internal/phonebook"
)

// ErrUnavailable is returned by a Backend when the underlying output
// device cannot be used at all (spec §4.A Failure modes: "file backend
// unavailable -> start fails with Unavailable, which the scheduler treats
// as immediate completion").
var ErrUnavailable = errors.New("audio: backend unavailable")

// Clip is what a Synthesizer hands back: either a real playable file path,
// or — when every synthesis option has failed — a silent duration to
// stand in for it (spec §4.A Failure modes heuristic fallback).
type Clip struct {
	Path    string
	Silence time.Duration
	Rings   []RingCue
}

// Backend plays one resolved audio source. done closes exactly once, when
// natural playback ends (never, for a looping source, until cancelled).
// cancel stops playback immediately; after it returns, the backend is
// silent (spec §4.A).
type Backend interface {
	Play(ctx context.Context, path string, loop bool) (done <-chan struct{}, cancel func(), err error)
}

// Synthesizer turns speech text into a Clip. When it returns an error,
// the Player substitutes silence of the heuristic duration instead.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Clip, error)
}

// Player plays at most one group at a time (spec §4.A).
type Player struct {
	backend Backend
	synth   Synthesizer
	log     *log.Logger
}

// NewPlayer builds a Player over the given output backend and speech
// synthesizer.
func NewPlayer(backend Backend, synth Synthesizer, logger *log.Logger) *Player {
	return &Player{backend: backend, synth: synth, log: logger.With("component", "audio")}
}

// Group is a state's sound list, resolved to concrete SoundSpecs, plus an
// optional inline speech string used when the state has no referenced
// sounds (spec §3 StateSpec).
type Group struct {
	Items        []*phonebook.SoundSpec
	InlineSpeech string
}

// Handle is returned by Start; it satisfies evaluator.ActuatorHandle.
type Handle struct {
	completion chan struct{}
	rings      chan RingCue
	once       sync.Once
	cancelFns  []func()
	mu         sync.Mutex
}

// Completion fires once every non-looping item in the group has finished
// (spec §4.A).
func (h *Handle) Completion() <-chan struct{} { return h.completion }

// Rings carries bell requests extracted from speech markers, emitted as
// playback reaches the corresponding offset (spec §4.A, §4.F).
func (h *Handle) Rings() <-chan RingCue { return h.rings }

// Cancel stops every item in the group. Idempotent (spec §4.F).
func (h *Handle) Cancel(_ context.Context) error {
	h.once.Do(func() {
		h.mu.Lock()
		fns := h.cancelFns
		h.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	})
	return nil
}

func (h *Handle) addCancel(fn func()) {
	h.mu.Lock()
	h.cancelFns = append(h.cancelFns, fn)
	h.mu.Unlock()
}

// Start begins playback of every item in the group, in declaration order,
// and returns immediately (spec §4.A: "actual decoding/output happens
// asynchronously").
func (p *Player) Start(ctx context.Context, group Group) *Handle {
	h := &Handle{
		completion: make(chan struct{}),
		rings:      make(chan RingCue, 8),
	}

	items := group.Items
	if len(items) == 0 && group.InlineSpeech != "" {
		items = []*phonebook.SoundSpec{{Speech: group.InlineSpeech}}
	}

	if len(items) == 0 {
		close(h.completion)
		return h
	}

	var mu sync.Mutex
	remaining := 0
	for _, it := range items {
		if !it.Loop {
			remaining++
		}
	}

	finishOne := func() {
		mu.Lock()
		remaining--
		done := remaining <= 0
		mu.Unlock()
		if done {
			closeOnce(h.completion)
		}
	}
	if remaining == 0 {
		// Every item loops: completion, per spec, never fires naturally.
		finishOne = func() {}
	}

	for _, it := range items {
		it := it
		itemCtx, cancel := context.WithCancel(ctx)
		h.addCancel(cancel)
		go p.playItem(itemCtx, it, h, finishOne)
	}

	return h
}

func (p *Player) playItem(ctx context.Context, item *phonebook.SoundSpec, h *Handle, finishOne func()) {
	if item.IsSpeech() {
		p.playSpeech(ctx, item, h, finishOne)
		return
	}
	p.playFile(ctx, item.File, item.Loop, h, finishOne)
}

func (p *Player) playSpeech(ctx context.Context, item *phonebook.SoundSpec, h *Handle, finishOne func()) {
	parsed := ParseSpeech(item.Speech)

	clip, err := p.synth.Synthesize(ctx, parsed.Text)
	if err != nil {
		p.log.Warn("speech synthesis failed, substituting silence", "err", err)
		clip = Clip{Silence: parsed.HeuristicDuration}
	}
	if len(clip.Rings) == 0 {
		clip.Rings = parsed.Rings
	}

	p.scheduleRings(ctx, h, clip.Rings)

	if clip.Path == "" {
		p.playSilence(ctx, clip.Silence, item.Loop, finishOne)
		return
	}
	p.playFile(ctx, clip.Path, item.Loop, h, finishOne)
}

func (p *Player) scheduleRings(ctx context.Context, h *Handle, rings []RingCue) {
	for _, cue := range rings {
		cue := cue
		t := time.AfterFunc(cue.Offset, func() {
			select {
			case h.rings <- cue:
			case <-ctx.Done():
			}
		})
		h.addCancel(t.Stop)
	}
}

func (p *Player) playSilence(ctx context.Context, d time.Duration, loop bool, finishOne func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
		if !loop {
			finishOne()
			return
		}
	}
}

func (p *Player) playFile(ctx context.Context, path string, loop bool, h *Handle, finishOne func()) {
	done, cancel, err := p.backend.Play(ctx, path, loop)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			p.log.Warn("audio backend unavailable, treating as immediate completion", "path", path)
			finishOne()
			return
		}
		p.log.Warn("playback failed", "path", path, "err", err)
		finishOne()
		return
	}
	h.addCancel(cancel)

	select {
	case <-done:
		if !loop {
			finishOne()
		}
	case <-ctx.Done():
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
