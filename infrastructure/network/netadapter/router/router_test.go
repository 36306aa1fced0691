package router

import (
	"bytes"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
)

const testTimeout = 5 * time.Second

func newTestRouter(t *testing.T) *Router {
	r := NewRouter("test", appmessage.NewCodec(appmessage.MainNet, appmessage.MaxMessagePayload))
	t.Cleanup(r.Close)
	return r
}

// waitForMailbox blocks until everything posted to r so far was processed.
func waitForMailbox(t *testing.T, r *Router) {
	done := make(chan struct{})
	err := r.Execute(func() error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %+v", err)
	}
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for the mailbox")
	}
}

// invocationLog records which subscriber saw which payload, in order.
type invocationLog struct {
	sync.Mutex
	entries []string
}

func (l *invocationLog) subscriber(name string, err error) Subscriber {
	return NewSubscriber(name, func(message appmessage.Message) error {
		l.Lock()
		defer l.Unlock()
		entry := name
		if raw, ok := message.(*appmessage.MsgRaw); ok {
			entry += ":" + string(raw.Payload)
		}
		l.entries = append(l.entries, entry)
		return err
	})
}

func (l *invocationLog) get() []string {
	l.Lock()
	defer l.Unlock()
	return append([]string(nil), l.entries...)
}

func TestRouterDispatchOrder(t *testing.T) {
	r := newTestRouter(t)
	calls := &invocationLog{}

	for _, name := range []string{"first", "second", "third"} {
		err := r.Subscribe("tx", calls.subscriber(name, nil))
		if err != nil {
			t.Fatalf("Subscribe: %+v", err)
		}
	}
	err := r.Start()
	if err != nil {
		t.Fatalf("Start: %+v", err)
	}

	for _, payload := range []string{"a", "b"} {
		err := r.EnqueueIncomingFrame(newTestEnvelope(t, "tx", []byte(payload)...))
		if err != nil {
			t.Fatalf("EnqueueIncomingFrame: %+v", err)
		}
	}
	waitForMailbox(t, r)

	want := []string{"first:a", "second:a", "third:a", "first:b", "second:b", "third:b"}
	if got := calls.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("dispatch order: got %v, want %v", got, want)
	}
}

func TestRouterHandlerErrorIsolation(t *testing.T) {
	r := newTestRouter(t)
	calls := &invocationLog{}

	var handlerErrors []*HandlerError
	r.SetOnHandlerErrorHandler(func(err *HandlerError) {
		handlerErrors = append(handlerErrors, err)
	})

	cause := errors.New("can't handle this")
	r.Subscribe("tx", calls.subscriber("failing", cause))
	r.Subscribe("tx", calls.subscriber("healthy", nil))
	r.Start()

	r.EnqueueIncomingFrame(newTestEnvelope(t, "tx", 'x'))
	r.EnqueueIncomingFrame(newTestEnvelope(t, "tx", 'y'))
	waitForMailbox(t, r)

	want := []string{"failing:x", "healthy:x", "failing:y", "healthy:y"}
	if got := calls.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invocations: got %v, want %v", got, want)
	}
	if len(handlerErrors) != 2 {
		t.Fatalf("handler errors: got %d, want 2", len(handlerErrors))
	}
	handlerErr := handlerErrors[0]
	if handlerErr.Subscriber != "failing" || handlerErr.Command != "tx" || !errors.Is(handlerErr, cause) {
		t.Fatalf("handler error: got %s", spew.Sdump(handlerErr))
	}
	if r.State().IsTerminal() {
		t.Fatalf("State: a subscriber error terminated the router (%s)", r.State())
	}
}

func TestRouterUnsubscribedCommand(t *testing.T) {
	r := newTestRouter(t)
	calls := &invocationLog{}
	r.Subscribe("tx", calls.subscriber("tx", nil))
	r.Start()

	r.EnqueueIncomingFrame(newTestEnvelope(t, "inv", 1, 2, 3))
	r.EnqueueIncomingFrame(newTestEnvelope(t, "unknowncmd"))
	waitForMailbox(t, r)

	if got := calls.get(); len(got) != 0 {
		t.Fatalf("invocations: got %v, want none", got)
	}
	if r.State() != Connecting {
		t.Fatalf("State: got %s, want %s", r.State(), Connecting)
	}
}

func TestRouterSubscribeIsIdempotent(t *testing.T) {
	r := newTestRouter(t)
	calls := &invocationLog{}
	subscriber := calls.subscriber("once", nil)
	r.Subscribe("tx", subscriber)
	r.Subscribe("tx", subscriber)
	r.Start()

	r.EnqueueIncomingFrame(newTestEnvelope(t, "tx", 'a'))
	waitForMailbox(t, r)

	want := []string{"once:a"}
	if got := calls.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invocations: got %v, want %v", got, want)
	}
}

func TestRouterSubscribeHasNoBackfill(t *testing.T) {
	r := newTestRouter(t)
	calls := &invocationLog{}
	r.Start()

	r.EnqueueIncomingFrame(newTestEnvelope(t, "tx", 'a'))
	r.Subscribe("tx", calls.subscriber("late", nil))
	r.EnqueueIncomingFrame(newTestEnvelope(t, "tx", 'b'))
	waitForMailbox(t, r)

	want := []string{"late:b"}
	if got := calls.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invocations: got %v, want %v", got, want)
	}
}

func TestRouterSend(t *testing.T) {
	r := newTestRouter(t)
	r.Start()

	r.Send(appmessage.NewMsgVerAck())
	r.Send(appmessage.NewMsgRaw("tx", []byte{0xca, 0xfe}))

	first, err := r.OutgoingRoute().DequeueWithTimeout(testTimeout)
	if err != nil {
		t.Fatalf("Dequeue: %+v", err)
	}
	second, err := r.OutgoingRoute().DequeueWithTimeout(testTimeout)
	if err != nil {
		t.Fatalf("Dequeue: %+v", err)
	}
	if first.Command != appmessage.CmdVerAck || len(first.Payload) != 0 {
		t.Fatalf("first envelope: got %s, want an empty verack", first)
	}
	if second.Command != "tx" || !bytes.Equal(second.Payload, []byte{0xca, 0xfe}) {
		t.Fatalf("second envelope: got %s", second)
	}
}

func TestRouterDecodeFailure(t *testing.T) {
	r := newTestRouter(t)
	calls := &invocationLog{}
	r.Subscribe(appmessage.CmdVersion, calls.subscriber("version", nil))

	states := make(chan ConnectionState, 2)
	r.SetOnStateChangedHandler(func(state ConnectionState, err error) {
		states <- state
	})
	r.Start()

	r.EnqueueIncomingFrame(newTestEnvelope(t, appmessage.CmdVersion, 1, 2, 3))
	select {
	case state := <-states:
		if state != Failed {
			t.Fatalf("state: got %s, want %s", state, Failed)
		}
	case <-time.After(testTimeout):
		t.Fatalf("router didn't fail on a truncated version")
	}
	if !errors.Is(r.Err(), appmessage.ErrTruncatedPayload) {
		t.Fatalf("Err: got %v, want %v", r.Err(), appmessage.ErrTruncatedPayload)
	}
	if got := calls.get(); len(got) != 0 {
		t.Fatalf("invocations: got %v, want none", got)
	}
}

func TestRouterClose(t *testing.T) {
	r := newTestRouter(t)
	calls := &invocationLog{}
	r.Subscribe("tx", calls.subscriber("tx", nil))

	var notifications []ConnectionState
	var notificationsLock sync.Mutex
	r.SetOnStateChangedHandler(func(state ConnectionState, err error) {
		notificationsLock.Lock()
		defer notificationsLock.Unlock()
		notifications = append(notifications, state)
	})
	closeCalls := 0
	r.SetOnCloseHandler(func() {
		closeCalls++
	})
	r.Start()
	r.Send(appmessage.NewMsgVerAck())
	waitForMailbox(t, r)

	r.Close()
	r.Close()
	r.Fail(errors.New("too late"))

	select {
	case <-r.Stopped():
	case <-time.After(testTimeout):
		t.Fatalf("dispatch goroutine didn't stop")
	}

	if r.State() != Closed {
		t.Fatalf("State: got %s, want %s", r.State(), Closed)
	}
	if r.Err() != nil {
		t.Fatalf("Err: got %v, want nil", r.Err())
	}
	if closeCalls != 1 {
		t.Fatalf("close handler: called %d times, want 1", closeCalls)
	}
	notificationsLock.Lock()
	if !reflect.DeepEqual(notifications, []ConnectionState{Closed}) {
		t.Fatalf("notifications: got %v, want [Closed]", notifications)
	}
	notificationsLock.Unlock()

	_, err := r.OutgoingRoute().Dequeue()
	if !errors.Is(err, ErrRouteClosed) {
		t.Fatalf("Dequeue: got %v, want %v, the unflushed verack must be discarded", err, ErrRouteClosed)
	}
	if err := r.Send(appmessage.NewMsgVerAck()); !errors.Is(err, ErrRouteClosed) {
		t.Fatalf("Send after Close: got %v, want %v", err, ErrRouteClosed)
	}
	if err := r.EnqueueIncomingFrame(newTestEnvelope(t, "tx")); !errors.Is(err, ErrRouteClosed) {
		t.Fatalf("EnqueueIncomingFrame after Close: got %v, want %v", err, ErrRouteClosed)
	}
	if err := r.SetState(Ready); !errors.Is(err, ErrRouteClosed) {
		t.Fatalf("SetState after Close: got %v, want %v", err, ErrRouteClosed)
	}
	if err := r.SetState(Failed); err == nil {
		t.Fatalf("SetState(Failed): expected an error")
	}
}

// testGatekeeper is a minimal handshake: it sends a version on start,
// expects a version then a verack, and refuses anything else before Ready.
type testGatekeeper struct {
	router  *Router
	started bool
}

var errNotReady = errors.New("not ready")

func (g *testGatekeeper) Name() string { return "gatekeeper" }

func (g *testGatekeeper) Commands() []appmessage.MessageCommand {
	return []appmessage.MessageCommand{appmessage.CmdVersion, appmessage.CmdVerAck}
}

func (g *testGatekeeper) Start() error {
	g.started = true
	err := g.router.Send(appmessage.NewMsgRaw("hello", nil))
	if err != nil {
		return err
	}
	return g.router.SetState(VersionSent)
}

func (g *testGatekeeper) Admit(command appmessage.MessageCommand, state ConnectionState) error {
	if state == Ready || command == appmessage.CmdVersion || command == appmessage.CmdVerAck {
		return nil
	}
	return errors.Wrapf(errNotReady, "got %s in state %s", command, state)
}

func (g *testGatekeeper) HandleMessage(message appmessage.Message) error {
	switch message.Command() {
	case appmessage.CmdVersion:
		return g.router.SetState(AwaitingVerack)
	case appmessage.CmdVerAck:
		if g.router.State() == AwaitingVerack {
			return g.router.MarkReady()
		}
	}
	return nil
}

func newTestVersionEnvelope(t *testing.T) *appmessage.MessageEnvelope {
	me := appmessage.NewNetAddressIPPort(nil, 0, 0)
	msg := appmessage.NewMsgVersion(me, me, 1, 0)
	var payload bytes.Buffer
	err := msg.Encode(&payload)
	if err != nil {
		t.Fatalf("Encode: %+v", err)
	}
	return newTestEnvelope(t, appmessage.CmdVersion, payload.Bytes()...)
}

func TestRouterGatekeeper(t *testing.T) {
	r := newTestRouter(t)
	gatekeeper := &testGatekeeper{router: r}
	err := r.SetGatekeeper(gatekeeper)
	if err != nil {
		t.Fatalf("SetGatekeeper: %+v", err)
	}
	if err := r.SetGatekeeper(gatekeeper); err == nil {
		t.Fatalf("SetGatekeeper: installing a second gatekeeper succeeded")
	}

	calls := &invocationLog{}
	r.Subscribe(appmessage.CmdVerAck, calls.subscriber("verack1", nil))
	r.Subscribe(appmessage.CmdVerAck, calls.subscriber("verack2", nil))
	r.Subscribe(appmessage.CmdVersion, calls.subscriber("version", nil))
	r.Start()
	waitForMailbox(t, r)

	if !gatekeeper.started || r.State() != VersionSent {
		t.Fatalf("gatekeeper wasn't started: state %s", r.State())
	}
	hello, err := r.OutgoingRoute().DequeueWithTimeout(testTimeout)
	if err != nil || hello.Command != "hello" {
		t.Fatalf("gatekeeper start message: got %v, %v", hello, err)
	}

	r.EnqueueIncomingFrame(newTestVersionEnvelope(t))
	waitForMailbox(t, r)
	if r.State() != AwaitingVerack {
		t.Fatalf("State: got %s, want %s", r.State(), AwaitingVerack)
	}
	if got := calls.get(); len(got) != 0 {
		t.Fatalf("ordinary subscribers ran before Ready: %v", got)
	}

	r.EnqueueIncomingFrame(newTestEnvelope(t, appmessage.CmdVerAck))
	waitForMailbox(t, r)
	if r.State() != Ready {
		t.Fatalf("State: got %s, want %s", r.State(), Ready)
	}
	want := []string{"verack1", "verack2"}
	if got := calls.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invocations: got %v, want %v", got, want)
	}

	if err := r.SetGatekeeper(&testGatekeeper{router: r}); err == nil {
		t.Fatalf("SetGatekeeper: succeeded on a started router")
	}
}

func TestRouterGatekeeperRejects(t *testing.T) {
	r := newTestRouter(t)
	r.SetGatekeeper(&testGatekeeper{router: r})
	calls := &invocationLog{}
	r.Subscribe("tx", calls.subscriber("tx", nil))

	states := make(chan ConnectionState, 1)
	r.SetOnStateChangedHandler(func(state ConnectionState, err error) {
		states <- state
	})
	r.Start()

	r.EnqueueIncomingFrame(newTestEnvelope(t, "tx", 'a'))
	select {
	case state := <-states:
		if state != Failed {
			t.Fatalf("state: got %s, want %s", state, Failed)
		}
	case <-time.After(testTimeout):
		t.Fatalf("router accepted a message before Ready")
	}
	if !errors.Is(r.Err(), errNotReady) {
		t.Fatalf("Err: got %v, want %v", r.Err(), errNotReady)
	}
	if got := calls.get(); len(got) != 0 {
		t.Fatalf("invocations: got %v, want none", got)
	}
}

func TestRouterExecuteError(t *testing.T) {
	r := newTestRouter(t)
	r.Start()

	taskErr := errors.New("task failed")
	r.Execute(func() error {
		return taskErr
	})
	select {
	case <-r.Stopped():
	case <-time.After(testTimeout):
		t.Fatalf("a failing task didn't stop the router")
	}
	if r.State() != Failed || !errors.Is(r.Err(), taskErr) {
		t.Fatalf("got %s/%v, want %s/%v", r.State(), r.Err(), Failed, taskErr)
	}
}

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		in   ConnectionState
		want string
	}{
		{Connecting, "Connecting"},
		{AwaitingVerack, "AwaitingVerack"},
		{Closed, "Closed"},
		{ConnectionState(42), "Unknown ConnectionState (42)"},
	}
	for i, test := range tests {
		if got := test.in.String(); got != test.want {
			t.Errorf("String #%d: got %s, want %s", i, got, test.want)
		}
	}
}
