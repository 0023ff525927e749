package remote

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tapirbug/fernspielapparat/internal/evaluator"
	"github.com/tapirbug/fernspielapparat/internal/phonebook"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, EvaluatorPort) {
	t.Helper()
	port := EvaluatorPort{
		Replace: make(chan *phonebook.Phonebook, 1),
		Inputs:  make(chan evaluator.Input, 1),
		Reset:   make(chan struct{}, 1),
	}
	srv := New("127.0.0.1:0", port, false, testLogger())
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return srv, ts, port
}

func dial(t *testing.T, ts *httptest.Server, subprotocols []string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	dialer := websocket.Dialer{Subprotocols: subprotocols}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHandlerAcceptsNegotiatedSubprotocol(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()
	assert.Equal(t, Subprotocol, conn.Subprotocol())
}

func TestHandlerClosesConnectionWithoutSubprotocol(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts, nil)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestDialCommandSplitsDigitsIntoSeparateInputs(t *testing.T) {
	_, ts, port := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("invoke: dial\nwith: \"01\"\n")))

	for _, want := range []string{"0", "1"} {
		select {
		case in := <-port.Inputs:
			assert.Equal(t, "dial", in.Kind)
			assert.Equal(t, want, in.Digit)
		case <-time.After(time.Second):
			t.Fatalf("digit %q never reached the evaluator port", want)
		}
	}
}

func TestDialCommandTranslatesHookCharacters(t *testing.T) {
	_, ts, port := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("invoke: dial\nwith: \"hp\"\n")))

	for _, want := range []string{"hang_up", "pick_up"} {
		select {
		case in := <-port.Inputs:
			assert.Equal(t, want, in.Kind)
		case <-time.After(time.Second):
			t.Fatalf("hook event %q never reached the evaluator port", want)
		}
	}
}

func TestRunCommandReplacesPhonebook(t *testing.T) {
	_, ts, port := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	frame := "invoke: run\nwith:\n  initial: s\n  states:\n    s: {}\n"
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	select {
	case pb := <-port.Replace:
		assert.Equal(t, "s", pb.Initial)
	case <-time.After(time.Second):
		t.Fatal("run command never reached the evaluator port")
	}
}

func TestRunCommandAcceptsStringPayload(t *testing.T) {
	_, ts, port := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	frame := "invoke: run\nwith: \"initial: s\\nstates:\\n  s: {}\\n\"\n"
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	select {
	case pb := <-port.Replace:
		assert.Equal(t, "s", pb.Initial)
	case <-time.After(time.Second):
		t.Fatal("run command with string payload never reached the evaluator port")
	}
}

func TestResetCommandForwardsToEvaluator(t *testing.T) {
	_, ts, port := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("invoke: reset\n")))

	select {
	case <-port.Reset:
	case <-time.After(time.Second):
		t.Fatal("reset command never reached the evaluator port")
	}
}

func TestUnknownInvokeClosesConnectionWithoutBroadcast(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("invoke: bogus\n")))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestUnknownRootKeyClosesConnection(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("invoke: reset\nbogus: true\n")))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestBinaryFrameClosesConnection(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestBroadcastEventsForwardsStartTransitionFinish(t *testing.T) {
	srv, ts, _ := newTestServer(t)
	conn := dial(t, ts, []string{Subprotocol})
	defer conn.Close()

	events := make(chan evaluator.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.BroadcastEvents(ctx, events)

	events <- evaluator.Event{Kind: evaluator.EventStart, Initial: "s"}
	events <- evaluator.Event{Kind: evaluator.EventTransition, From: "s", To: "t", Reason: "end"}
	events <- evaluator.Event{Kind: evaluator.EventFinish, Terminal: "t"}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	frame, err := decodeFrameForTest(data)
	require.NoError(t, err)
	assert.Equal(t, EventStart, frame.Type)
	assert.Equal(t, "s", frame.Initial)

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	frame, err = decodeFrameForTest(data)
	require.NoError(t, err)
	assert.Equal(t, EventTransition, frame.Type)
	assert.Equal(t, "s", frame.From)
	assert.Equal(t, "t", frame.To)
	assert.Equal(t, "end", frame.Reason)

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	frame, err = decodeFrameForTest(data)
	require.NoError(t, err)
	assert.Equal(t, EventFinish, frame.Type)
	assert.Equal(t, "t", frame.Terminal)
}

func decodeFrameForTest(data []byte) (Frame, error) {
	var f Frame
	err := yaml.Unmarshal(data, &f)
	return f, err
}
