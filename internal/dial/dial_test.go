package dial

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
}

// fakeBus drives a scripted sequence of register values, one per read,
// repeating the last value once the script is exhausted.
type fakeBus struct {
	script []byte
	i      int
}

func (b *fakeBus) ReadByteData(_ uint16, _ byte) (byte, error) {
	if b.i >= len(b.script) {
		return b.script[len(b.script)-1], nil
	}
	v := b.script[b.i]
	b.i++
	return v, nil
}
func (b *fakeBus) WriteByteData(_ uint16, _, _ byte) error { return nil }
func (b *fakeBus) Close() error                            { return nil }

func TestDecoderCountsThreePulsesAsDigitThree(t *testing.T) {
	// pulseMask = bit0. Three low->high edges, then idle long enough to
	// finalize.
	script := []byte{0, 1, 0, 1, 0, 1, 0}
	for i := 0; i < 10; i++ {
		script = append(script, 0)
	}
	bus := &fakeBus{script: script}
	d := NewDecoder(bus, 0x20, 0x00, 0x01, 0x02, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := d.Run(ctx, 5*time.Millisecond)

	select {
	case ev := <-events:
		assert.Equal(t, KindDial, ev.Kind)
		assert.Equal(t, "3", ev.Digit)
	case <-time.After(900 * time.Millisecond):
		t.Fatal("no dial event decoded")
	}
}

func TestDecoderTenPulsesIsDigitZero(t *testing.T) {
	var script []byte
	for i := 0; i < 10; i++ {
		script = append(script, 0, 1)
	}
	for i := 0; i < 10; i++ {
		script = append(script, 0)
	}
	bus := &fakeBus{script: script}
	d := NewDecoder(bus, 0x20, 0x00, 0x01, 0x02, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := d.Run(ctx, 5*time.Millisecond)

	select {
	case ev := <-events:
		assert.Equal(t, "0", ev.Digit)
	case <-time.After(900 * time.Millisecond):
		t.Fatal("no dial event decoded")
	}
}

func TestDecoderHookSwitchEdgesEmitPickUpAndHangUp(t *testing.T) {
	script := []byte{0x02, 0x02, 0x00, 0x00, 0x02, 0x02}
	bus := &fakeBus{script: script}
	d := NewDecoder(bus, 0x20, 0x00, 0x01, 0x02, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := d.Run(ctx, 5*time.Millisecond)

	ev1 := requireEvent(t, events)
	assert.Equal(t, KindPickUp, ev1.Kind)

	ev2 := requireEvent(t, events)
	assert.Equal(t, KindHangUp, ev2.Kind)
}

func requireEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(900 * time.Millisecond):
		t.Fatal("expected event, got none")
		return Event{}
	}
}

func TestKeyboardTranslateDigitsAndHook(t *testing.T) {
	ev, ok := translate('7', time.Now())
	require.True(t, ok)
	assert.Equal(t, KindDial, ev.Kind)
	assert.Equal(t, "7", ev.Digit)

	ev, ok = translate('p', time.Now())
	require.True(t, ok)
	assert.Equal(t, KindPickUp, ev.Kind)

	ev, ok = translate('h', time.Now())
	require.True(t, ok)
	assert.Equal(t, KindHangUp, ev.Kind)

	_, ok = translate('x', time.Now())
	assert.False(t, ok)
}
