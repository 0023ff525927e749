package audio

import (
	"regexp"
	"strings"
	"time"
)

// pauseUnit is the duration of a single "." in speech text (spec §3
// SoundSpec: "sequences of dots (pause of N×unit)").
const pauseUnit = 250 * time.Millisecond

// charDuration is the heuristic fallback synthesis rate used when no TTS
// backend is available at all (spec §4.A: "substitute silence equal to a
// heuristic (e.g. 80ms per character)").
const charDuration = 80 * time.Millisecond

var (
	ringMarker  = regexp.MustCompile(`<ring>`)
	emphMarker  = regexp.MustCompile(`\*([^*]+)\*`)
	pauseMarker = regexp.MustCompile(`\.+`)
)

// RingCue is a bell ring request extracted from speech text, carrying the
// offset into the synthesized audio (from the start of the clip) at which
// the ring should begin (spec §4.A, §4.F).
type RingCue struct {
	Offset time.Duration
}

// ParsedSpeech is speech text with <ring> markers pulled out into
// schedulable cues, and an estimate of the clip's total spoken duration
// used only when no real synthesis backend is available (the fallback
// heuristic).
type ParsedSpeech struct {
	// Text is the speech text with <ring> markers removed and emphasis
	// asterisks stripped (*word* becomes word); pause (.) markers are left
	// in place for the TTS backend.
	Text string
	Rings []RingCue
	// HeuristicDuration is the total duration implied by pauses and
	// per-character timing, used for the silence-substitution fallback.
	HeuristicDuration time.Duration
}

// ParseSpeech extracts <ring> markers and estimates pacing from *emphasis*
// and "." pause runs (spec §3 SoundSpec, §9 "Speech marker parsing").
func ParseSpeech(text string) ParsedSpeech {
	var rings []RingCue
	var offset time.Duration

	// Walk the string left to right, accumulating a heuristic duration
	// estimate and recording a RingCue wherever <ring> occurs, so its
	// Offset reflects the text that precedes it.
	var out strings.Builder
	remaining := text
	for {
		loc := ringMarker.FindStringIndex(remaining)
		var chunk string
		if loc == nil {
			chunk = remaining
		} else {
			chunk = remaining[:loc[0]]
		}

		d, plain := measureChunk(chunk)
		offset += d
		out.WriteString(plain)

		if loc == nil {
			break
		}
		rings = append(rings, RingCue{Offset: offset})
		remaining = remaining[loc[1]:]
	}

	return ParsedSpeech{
		Text:              out.String(),
		Rings:             rings,
		HeuristicDuration: offset,
	}
}

// measureChunk estimates the spoken duration of a plain-text chunk (no
// <ring> markers) and returns it alongside the chunk with emphasis
// asterisks stripped back to bare words (the heuristic treats emphasis as
// ordinary characters; only pauses get special timing).
func measureChunk(chunk string) (time.Duration, string) {
	var total time.Duration
	plain := emphMarker.ReplaceAllString(chunk, "$1")

	// Pauses: every run of dots counts as len(run) * pauseUnit instead of
	// per-character heuristic timing.
	idx := 0
	for _, loc := range pauseMarker.FindAllStringIndex(plain, -1) {
		before := plain[idx:loc[0]]
		total += time.Duration(len(before)) * charDuration
		total += time.Duration(loc[1]-loc[0]) * pauseUnit
		idx = loc[1]
	}
	total += time.Duration(len(plain[idx:])) * charDuration

	return total, plain
}
