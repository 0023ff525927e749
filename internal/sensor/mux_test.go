package sensor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/tapirbug/fernspielapparat/internal/evaluator"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
}

func TestMuxForwardsFromMultipleSources(t *testing.T) {
	m := NewMux(4, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan evaluator.Input, 1)
	b := make(chan evaluator.Input, 1)
	m.Add(ctx, Source(a))
	m.Add(ctx, Source(b))

	a <- evaluator.Input{Kind: "dial", Digit: "1"}
	b <- evaluator.Input{Kind: "pick_up"}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case in := <-m.Out():
			seen[in.Kind] = true
		case <-time.After(time.Second):
			t.Fatal("expected merged input")
		}
	}
	assert.True(t, seen["dial"])
	assert.True(t, seen["pick_up"])
}

func TestMuxDropsOldestWhenFull(t *testing.T) {
	m := NewMux(1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := make(chan evaluator.Input, 1)
	m.Add(ctx, Source(src))

	src <- evaluator.Input{Kind: "dial", Digit: "1"}
	time.Sleep(20 * time.Millisecond) // let it land in m.out
	src <- evaluator.Input{Kind: "dial", Digit: "2"}
	time.Sleep(20 * time.Millisecond)
	src <- evaluator.Input{Kind: "dial", Digit: "3"}
	time.Sleep(20 * time.Millisecond)

	select {
	case in := <-m.Out():
		assert.Equal(t, "3", in.Digit)
	default:
		t.Fatal("expected at least one pending input")
	}
}
