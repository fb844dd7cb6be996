package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agent-hub/backend/internal/handler"
	"github.com/agent-hub/backend/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransport records envelopes sent to a session.
type fakeTransport struct {
	mu     sync.Mutex
	envs   []model.Envelope
	sent   chan model.Envelope
	closed bool
	err    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan model.Envelope, 256)}
}

func (f *fakeTransport) Send(env model.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.envs = append(f.envs, env)
	select {
	case f.sent <- env:
	default:
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// next waits for the next envelope of type typ, skipping others.
func (f *fakeTransport) next(t *testing.T, typ model.EnvelopeType) model.Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-f.sent:
			if env.Type == typ {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s envelope", typ)
			return model.Envelope{}
		}
	}
}

// staticRouter sends everything to one handler.
type staticRouter string

func (r staticRouter) Classify(ctx context.Context, msg model.Message, history []model.Message) model.RoutingDecision {
	return model.RoutingDecision{Handler: string(r), Confidence: 0.9, Reasoning: "test", Tier: model.TierKeyword}
}

type memRecorder struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (r *memRecorder) Append(ctx context.Context, sessionID string, msg model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *memRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func echoRegistry(t *testing.T) *handler.Registry {
	t.Helper()
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register("echo", handler.HandlerFunc(
		func(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
			return "echo: " + msg.Content(), nil
		})))
	return reg
}

func newTestHub(t *testing.T, reg *handler.Registry, cfg Config) *Hub {
	t.Helper()
	h := New(staticRouter("echo"), reg, cfg, nil)
	t.Cleanup(h.Close)
	return h
}

func TestConnectGeneratesID(t *testing.T) {
	h := newTestHub(t, echoRegistry(t), Config{})

	s, err := h.Connect(newFakeTransport(), "")
	require.NoError(t, err)
	assert.Len(t, s.ID(), 36)
	assert.Equal(t, 1, h.Count())
}

func TestConnectDuplicate(t *testing.T) {
	h := newTestHub(t, echoRegistry(t), Config{})
	first := newFakeTransport()

	_, err := h.Connect(first, "alice")
	require.NoError(t, err)

	second := newFakeTransport()
	_, err = h.Connect(second, "alice")
	require.ErrorIs(t, err, model.ErrDuplicateSession)
	assert.Equal(t, 1, h.Count())
	assert.False(t, second.isClosed())

	// The original session is untouched.
	require.NoError(t, h.Ingest("alice", []byte(`{"message":"still here"}`)))
	env := first.next(t, model.EnvelopeMessage)
	assert.Equal(t, "echo: still here", env.Message)
}

func TestDeliverUnknownSession(t *testing.T) {
	h := newTestHub(t, echoRegistry(t), Config{})

	err := h.Deliver("ghost", model.NewEnvelope(model.EnvelopeSystem, "hi", SystemAgent))

	var terr *model.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "ghost", terr.SessionID)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	assert.Equal(t, int64(1), h.Stats().DeliveryFailures)
}

func TestDeliverTransportFailure(t *testing.T) {
	h := newTestHub(t, echoRegistry(t), Config{})
	tr := newFakeTransport()
	tr.err = errors.New("broken pipe")

	_, err := h.Connect(tr, "bob")
	require.NoError(t, err)

	err = h.Deliver("bob", model.NewEnvelope(model.EnvelopeSystem, "hi", SystemAgent))
	var terr *model.TransportError
	require.ErrorAs(t, err, &terr)
	assert.EqualError(t, terr.Err, "broken pipe")
}

func TestMessageRoundTrip(t *testing.T) {
	rec := &memRecorder{}
	h := newTestHub(t, echoRegistry(t), Config{Typing: true, Welcome: "Welcome!"})
	h.SetRecorder(rec)
	tr := newFakeTransport()

	_, err := h.Connect(tr, "carol")
	require.NoError(t, err)

	welcome := tr.next(t, model.EnvelopeSystem)
	assert.Equal(t, "Welcome!", welcome.Message)

	require.NoError(t, h.Ingest("carol", []byte("plain text question")))

	typing := tr.next(t, model.EnvelopeTyping)
	assert.Equal(t, "echo is thinking...", typing.Message)

	env := tr.next(t, model.EnvelopeMessage)
	assert.Equal(t, "echo: plain text question", env.Message)
	assert.Equal(t, "echo", env.Agent)
	assert.Equal(t, "carol", env.UserID)
	assert.Equal(t, "echo", env.Metadata["handler"])

	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, 10*time.Millisecond)

	summaries := h.Sessions()
	require.Len(t, summaries, 1)
	assert.Equal(t, "carol", summaries[0].ID)
	assert.Equal(t, int64(2), summaries[0].MessageCount)
	assert.Equal(t, "echo", summaries[0].LastHandler)
	assert.False(t, summaries[0].Virtual)
}

func TestIngestIgnoresEmptyFrames(t *testing.T) {
	h := newTestHub(t, echoRegistry(t), Config{})
	_, err := h.Connect(newFakeTransport(), "dave")
	require.NoError(t, err)

	require.NoError(t, h.Ingest("dave", []byte("   ")))
	require.NoError(t, h.Ingest("dave", []byte(`{"message":""}`)))
	assert.Equal(t, int64(0), h.Stats().Ingested)
}

func TestIngestUnknownSession(t *testing.T) {
	h := newTestHub(t, echoRegistry(t), Config{})
	err := h.Ingest("ghost", []byte("hello"))
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestPerSessionFIFO(t *testing.T) {
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register("echo", handler.HandlerFunc(
		func(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
			// Later messages finish faster; order must still hold.
			var n int
			fmt.Sscanf(msg.Content(), "%d", &n)
			time.Sleep(time.Duration(20-n) * time.Millisecond)
			return msg.Content(), nil
		})))
	h := newTestHub(t, reg, Config{})
	tr := newFakeTransport()
	_, err := h.Connect(tr, "erin")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, h.Ingest("erin", []byte(fmt.Sprintf("%d", i))))
	}
	for i := 0; i < 20; i++ {
		env := tr.next(t, model.EnvelopeMessage)
		assert.Equal(t, fmt.Sprintf("%d", i), env.Message)
	}
}

func TestHandlerErrorKeepsSessionAlive(t *testing.T) {
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register("echo", handler.HandlerFunc(
		func(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
			if msg.Content() == "fail" {
				return "", errors.New("model unavailable")
			}
			return "ok", nil
		})))
	h := newTestHub(t, reg, Config{})
	tr := newFakeTransport()
	_, err := h.Connect(tr, "frank")
	require.NoError(t, err)

	require.NoError(t, h.Ingest("frank", []byte("fail")))
	errEnv := tr.next(t, model.EnvelopeError)
	assert.NotEmpty(t, errEnv.Message)
	assert.NotContains(t, errEnv.Message, "model unavailable")

	require.NoError(t, h.Ingest("frank", []byte("again")))
	env := tr.next(t, model.EnvelopeMessage)
	assert.Equal(t, "ok", env.Message)
	assert.Equal(t, int64(1), h.Stats().HandlerErrors)
}

func TestUnknownHandlerDeliversError(t *testing.T) {
	h := New(staticRouter("missing"), echoRegistry(t), Config{}, nil)
	t.Cleanup(h.Close)
	tr := newFakeTransport()
	_, err := h.Connect(tr, "gina")
	require.NoError(t, err)

	require.NoError(t, h.Ingest("gina", []byte("hello")))
	tr.next(t, model.EnvelopeError)
	assert.Equal(t, 1, h.Count())
}

func TestDisconnectCancelsInFlightHandler(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan error, 1)

	reg := handler.NewRegistry()
	require.NoError(t, reg.Register("echo", handler.HandlerFunc(
		func(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
			close(started)
			<-ctx.Done()
			cancelled <- ctx.Err()
			return "too late", nil
		})))
	h := newTestHub(t, reg, Config{})
	tr := newFakeTransport()
	_, err := h.Connect(tr, "henry")
	require.NoError(t, err)

	require.NoError(t, h.Ingest("henry", []byte("slow question")))
	<-started

	h.Disconnect("henry")

	assert.ErrorIs(t, <-cancelled, context.Canceled)
	assert.True(t, tr.isClosed())
	assert.Equal(t, 0, h.Count())

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, env := range tr.envs {
		assert.NotEqual(t, model.EnvelopeMessage, env.Type, "reply of a disconnected session must be discarded")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub(t, echoRegistry(t), Config{})
	_, err := h.Connect(newFakeTransport(), "ivy")
	require.NoError(t, err)

	h.Disconnect("ivy")
	h.Disconnect("ivy")
	h.Disconnect("never-existed")

	// The id can be reused after teardown.
	_, err = h.Connect(newFakeTransport(), "ivy")
	assert.NoError(t, err)
}

func TestConnectDuringTeardownIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	reg := handler.NewRegistry()
	require.NoError(t, reg.Register("echo", handler.HandlerFunc(
		func(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
			close(started)
			<-ctx.Done()
			<-release
			return "", ctx.Err()
		})))
	h := newTestHub(t, reg, Config{})
	oldTr := newFakeTransport()
	_, err := h.Connect(oldTr, "xena")
	require.NoError(t, err)

	require.NoError(t, h.Ingest("xena", []byte("slow question")))
	<-started

	first := make(chan struct{})
	go func() {
		h.Disconnect("xena")
		close(first)
	}()
	second := make(chan struct{})
	go func() {
		// Waits for the same teardown.
		time.Sleep(20 * time.Millisecond)
		h.Disconnect("xena")
		close(second)
	}()

	// The worker is still inside the handler, so the id is reserved.
	require.Eventually(t, func() bool {
		_, ok := h.Get("xena")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	_, err = h.Connect(newFakeTransport(), "xena")
	assert.ErrorIs(t, err, model.ErrDuplicateSession)
	assert.False(t, oldTr.isClosed())
	assert.Equal(t, 0, h.Count())

	time.Sleep(50 * time.Millisecond)
	select {
	case <-second:
		t.Fatal("concurrent Disconnect returned before teardown finished")
	default:
	}

	close(release)
	<-first
	<-second
	assert.True(t, oldTr.isClosed())

	_, err = h.Connect(newFakeTransport(), "xena")
	assert.NoError(t, err)
}

func TestDisconnectSessionIgnoresReusedID(t *testing.T) {
	h := newTestHub(t, echoRegistry(t), Config{})
	old, err := h.Connect(newFakeTransport(), "yuri")
	require.NoError(t, err)
	h.Disconnect("yuri")

	fresh, err := h.Connect(newFakeTransport(), "yuri")
	require.NoError(t, err)

	h.DisconnectSession(old)

	got, ok := h.Get("yuri")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	h.DisconnectSession(fresh)
	_, ok = h.Get("yuri")
	assert.False(t, ok)
}

func TestVirtualSessionIngest(t *testing.T) {
	kinds := make(chan model.Message, 1)
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register("echo", handler.HandlerFunc(
		func(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
			kinds <- msg
			return "ack", nil
		})))
	h := newTestHub(t, reg, Config{Welcome: "not for virtual sessions"})
	tr := newFakeTransport()

	s, err := h.ConnectVirtual(tr, "poc-backend")
	require.NoError(t, err)
	assert.True(t, s.Virtual())

	require.NoError(t, h.Ingest("poc-backend", []byte("from outside")))

	msg := <-kinds
	assert.Equal(t, model.KindExternal, msg.Kind())
	assert.Equal(t, model.DefaultExternalSender, msg.Sender())

	env := tr.next(t, model.EnvelopeMessage)
	assert.Equal(t, "ack", env.Message)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, e := range tr.envs {
		assert.NotEqual(t, model.EnvelopeSystem, e.Type)
	}
}

func TestHistoryPassedToHandlerExcludesCurrent(t *testing.T) {
	seen := make(chan []model.Message, 2)
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register("echo", handler.HandlerFunc(
		func(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
			seen <- history
			return "reply to " + msg.Content(), nil
		})))
	h := newTestHub(t, reg, Config{})
	tr := newFakeTransport()
	_, err := h.Connect(tr, "jack")
	require.NoError(t, err)

	require.NoError(t, h.Ingest("jack", []byte("first")))
	assert.Empty(t, <-seen)
	tr.next(t, model.EnvelopeMessage)

	require.NoError(t, h.Ingest("jack", []byte("second")))
	history := <-seen
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content())
	assert.Equal(t, "reply to first", history[1].Content())
	assert.Equal(t, model.KindHandler, history[1].Kind())
}

func TestCloseRejectsNewSessions(t *testing.T) {
	h := New(staticRouter("echo"), echoRegistry(t), Config{}, nil)
	tr := newFakeTransport()
	_, err := h.Connect(tr, "kate")
	require.NoError(t, err)

	h.Close()

	assert.True(t, tr.isClosed())
	assert.Equal(t, 0, h.Count())
	_, err = h.Connect(newFakeTransport(), "late")
	assert.Error(t, err)
}
