package phonebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const s1YAML = `
states:
  countdown:
    sounds: [c]
  destruction:
    sounds: [d]
transitions:
  countdown:
    end: destruction
sounds:
  c:
    speech: "Three.. Two.. One.."
  d:
    speech: "Self-destruction initiated"
`

func TestCompileS1(t *testing.T) {
	pb, err := FromBytes([]byte(s1YAML))
	require.NoError(t, err)

	assert.Equal(t, "countdown", pb.Initial, "lexicographically first state wins when initial is absent")

	destruction, ok := pb.State("destruction")
	require.True(t, ok)
	assert.True(t, destruction.Terminal, "state with no outgoing transitions is terminal")

	countdown, ok := pb.State("countdown")
	require.True(t, ok)
	assert.False(t, countdown.Terminal)

	assert.Equal(t, "destruction", pb.TransitionsFor("countdown").Lookup("end"))
}

func TestCompileRejectsUndeclaredTarget(t *testing.T) {
	doc := `
states:
  a: {}
transitions:
  a:
    end: nowhere
`
	_, err := FromBytes([]byte(doc))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCompileRejectsUndeclaredSound(t *testing.T) {
	doc := `
states:
  a:
    sounds: [missing]
`
	_, err := FromBytes([]byte(doc))
	require.Error(t, err)
}

func TestCompileRejectsSoundWithBothFileAndSpeech(t *testing.T) {
	doc := `
states:
  a: {}
sounds:
  s:
    file: ring.wav
    speech: hello
`
	_, err := FromBytes([]byte(doc))
	require.Error(t, err)
}

func TestExplicitInitial(t *testing.T) {
	doc := `
initial: b
states:
  a: {}
  b: {}
`
	pb, err := FromBytes([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "b", pb.Initial)
}

func TestUserDefinedReasonTransition(t *testing.T) {
	doc := `
states:
  a: {}
  b: {}
transitions:
  a:
    jackpot: b
`
	pb, err := FromBytes([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "b", pb.TransitionsFor("a").Lookup("jackpot"))
}

func TestEmptyStateIsTerminal(t *testing.T) {
	doc := `
states:
  a: {}
`
	pb, err := FromBytes([]byte(doc))
	require.NoError(t, err)
	a, _ := pb.State("a")
	assert.True(t, a.Terminal, "spec §8 boundary property 9: no sounds, no transitions -> terminal")
}

func TestDataURISoundIsDecoded(t *testing.T) {
	// "hi" base64-encoded.
	doc := `
states:
  a:
    sounds: [s]
sounds:
  s:
    file: "data:audio/wav;base64,aGk="
`
	pb, err := FromBytes([]byte(doc))
	require.NoError(t, err)
	snd, _ := pb.Sound("s")
	assert.Equal(t, "data:s", snd.File)
	assert.Equal(t, []byte("hi"), pb.DataBlobs["s"])
}

func TestUnknownDialDigitHasNoTarget(t *testing.T) {
	doc := `
states:
  s: {}
  t: {}
transitions:
  s:
    dial:
      "5": t
`
	pb, err := FromBytes([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "", pb.TransitionsFor("s").DialTarget("3"), "spec §8 S6")
	assert.Equal(t, "t", pb.TransitionsFor("s").DialTarget("5"))
}
