package router

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/infrastructure/metrics"
)

// OnStateChangedHandler is called when a connection becomes Ready and,
// exactly once, when it reaches a terminal state.
type OnStateChangedHandler func(state ConnectionState, err error)

// OnHandlerErrorHandler is called for every error a subscriber returns.
type OnHandlerErrorHandler func(err *HandlerError)

// Router dispatches the messages of a single connection to the
// subscribers of their commands, and queues the messages to send back.
//
// Everything that touches the subscriptions runs on one dispatch
// goroutine, fed by an unbounded mailbox. Frames are dispatched in the
// order they arrived and sends are queued in the order they were made.
type Router struct {
	name    string
	codec   *appmessage.Codec
	metrics *metrics.Metrics

	mailbox       *queue
	outgoingRoute *Route

	// Owned by the dispatch goroutine.
	subscriptions      map[appmessage.MessageCommand][]Subscriber
	gatekeeper         Gatekeeper
	gatekeeperCommands map[appmessage.MessageCommand]struct{}

	state     uint32
	stateLock sync.Mutex
	wasReady  bool
	cause     error

	isStarted uint32
	stopped   chan struct{}

	onStateChangedHandler OnStateChangedHandler
	onHandlerErrorHandler OnHandlerErrorHandler
	onCloseHandler        func()
}

// NewRouter creates a new empty router
func NewRouter(name string, codec *appmessage.Codec) *Router {
	return &Router{
		name:               name,
		codec:              codec,
		mailbox:            newQueue(),
		outgoingRoute:      NewRoute(name + "-outgoing"),
		subscriptions:      make(map[appmessage.MessageCommand][]Subscriber),
		gatekeeperCommands: make(map[appmessage.MessageCommand]struct{}),
		state:              uint32(Connecting),
		stopped:            make(chan struct{}),
	}
}

func (r *Router) String() string {
	return r.name
}

// SetMetrics sets the collectors the router reports to. Must be called
// before Start.
func (r *Router) SetMetrics(metrics *metrics.Metrics) {
	r.metrics = metrics
}

// SetOnStateChangedHandler sets the lifecycle handler. Must be called
// before Start.
func (r *Router) SetOnStateChangedHandler(onStateChangedHandler OnStateChangedHandler) {
	r.onStateChangedHandler = onStateChangedHandler
}

// SetOnHandlerErrorHandler sets the handler called for subscriber errors.
// Must be called before Start.
func (r *Router) SetOnHandlerErrorHandler(onHandlerErrorHandler OnHandlerErrorHandler) {
	r.onHandlerErrorHandler = onHandlerErrorHandler
}

// SetOnCloseHandler sets a function that releases whatever the router
// reads from and writes to. It runs once, when the router terminates.
func (r *Router) SetOnCloseHandler(onCloseHandler func()) {
	r.onCloseHandler = onCloseHandler
}

// SetGatekeeper installs the gatekeeper. Must be called before Start.
func (r *Router) SetGatekeeper(gatekeeper Gatekeeper) error {
	if atomic.LoadUint32(&r.isStarted) != 0 {
		return errors.Errorf("cannot set a gatekeeper on started router %s", r)
	}
	if r.gatekeeper != nil {
		return errors.Errorf("router %s already has a gatekeeper", r)
	}
	r.gatekeeper = gatekeeper
	for _, command := range gatekeeper.Commands() {
		r.gatekeeperCommands[command] = struct{}{}
	}
	return nil
}

// Start launches the dispatch goroutine. If a gatekeeper is installed it
// is started before anything else is processed.
func (r *Router) Start() error {
	if !atomic.CompareAndSwapUint32(&r.isStarted, 0, 1) {
		return errors.Errorf("router %s was already started", r)
	}
	if r.gatekeeper != nil {
		err := r.mailbox.enqueue(startItem{})
		if err != nil {
			return err
		}
	}
	spawn("Router.dispatchLoop-"+r.name, r.dispatchLoop)
	return nil
}

// Stopped returns a channel that is closed once the dispatch goroutine of
// a started router returns.
func (r *Router) Stopped() <-chan struct{} {
	return r.stopped
}

// Subscribe adds subscriber to the subscribers of command. Subscribing
// the same subscriber to the same command again does nothing. The
// subscriber receives frames processed after this call, never earlier
// ones.
func (r *Router) Subscribe(command appmessage.MessageCommand, subscriber Subscriber) error {
	return r.mailbox.enqueue(subscribeItem{command: command, subscriber: subscriber})
}

// EnqueueIncomingFrame posts a decoded frame for dispatch.
func (r *Router) EnqueueIncomingFrame(envelope *appmessage.MessageEnvelope) error {
	return r.mailbox.enqueue(incomingFrameItem{envelope: envelope})
}

// Send queues message to be encoded and written to the peer.
func (r *Router) Send(message appmessage.Message) error {
	return r.mailbox.enqueue(sendItem{message: message})
}

// Execute runs task on the dispatch goroutine, after everything posted
// before it. An error returned by task fails the connection.
func (r *Router) Execute(task func() error) error {
	return r.mailbox.enqueue(taskItem{task: task})
}

// OutgoingRoute returns the outgoing route
func (r *Router) OutgoingRoute() *Route {
	return r.outgoingRoute
}

// State returns the current connection state. It's safe to call from any
// goroutine.
func (r *Router) State() ConnectionState {
	return ConnectionState(atomic.LoadUint32(&r.state))
}

// Err returns what terminated the router, if anything did.
func (r *Router) Err() error {
	r.stateLock.Lock()
	defer r.stateLock.Unlock()

	return r.cause
}

// SetState moves the connection to a non-terminal state. Terminal states
// are reached through Close and Fail.
func (r *Router) SetState(state ConnectionState) error {
	if state.IsTerminal() {
		return errors.Errorf("state %s can only be reached by closing the router", state)
	}

	r.stateLock.Lock()
	current := r.State()
	if current.IsTerminal() {
		r.stateLock.Unlock()
		return errors.Wrapf(ErrRouteClosed, "router %s is %s", r, current)
	}
	atomic.StoreUint32(&r.state, uint32(state))
	becameReady := state == Ready && !r.wasReady
	if becameReady {
		r.wasReady = true
	}
	r.stateLock.Unlock()

	log.Tracef("%s: %s -> %s", r, current, state)
	if becameReady {
		r.metrics.HandshakeFinished(true)
		r.notifyStateChanged(Ready, nil)
	}
	return nil
}

// MarkReady moves the connection to Ready, from where ordinary subscribers
// start receiving messages.
func (r *Router) MarkReady() error {
	return r.SetState(Ready)
}

// Close shuts down the router. Nothing is dispatched after Close returns,
// and envelopes not yet taken by the writer are discarded.
func (r *Router) Close() {
	r.terminate(Closed, nil)
}

// CloseWithError closes the router because the connection under it went
// away.
func (r *Router) CloseWithError(err error) {
	r.terminate(Closed, err)
}

// Fail closes the router because of a fatal error.
func (r *Router) Fail(err error) {
	r.terminate(Failed, err)
}

func (r *Router) terminate(state ConnectionState, cause error) {
	r.stateLock.Lock()
	current := r.State()
	if current.IsTerminal() {
		r.stateLock.Unlock()
		return
	}
	atomic.StoreUint32(&r.state, uint32(state))
	r.cause = cause
	wasReady := r.wasReady
	r.stateLock.Unlock()

	if state == Failed {
		log.Infof("%s: connection failed in state %s: %s", r, current, cause)
	} else {
		log.Debugf("%s: connection closed in state %s", r, current)
	}

	r.mailbox.close()
	r.outgoingRoute.Close()
	if r.onCloseHandler != nil {
		r.onCloseHandler()
	}
	if r.gatekeeper != nil && !wasReady {
		r.metrics.HandshakeFinished(false)
	}
	r.notifyStateChanged(state, cause)
}

func (r *Router) notifyStateChanged(state ConnectionState, err error) {
	if r.onStateChangedHandler != nil {
		r.onStateChangedHandler(state, err)
	}
}

func (r *Router) dispatchLoop() {
	defer close(r.stopped)

	for {
		item, err := r.mailbox.dequeue(0)
		if err != nil {
			r.subscriptions = nil
			return
		}
		item.(mailboxItem).process(r)
	}
}

func (r *Router) addSubscription(command appmessage.MessageCommand, subscriber Subscriber) {
	for _, existing := range r.subscriptions[command] {
		if existing == subscriber {
			return
		}
	}
	r.subscriptions[command] = append(r.subscriptions[command], subscriber)
	log.Tracef("%s: %s subscribed to %s", r, subscriber.Name(), command)
}

func (r *Router) onFrameDecoded(envelope *appmessage.MessageEnvelope) {
	command := envelope.Command
	state := r.State()
	if state.IsTerminal() {
		return
	}
	r.metrics.FrameReceived(string(command))

	if r.gatekeeper != nil {
		err := r.gatekeeper.Admit(command, state)
		if err != nil {
			r.Fail(err)
			return
		}
	}

	_, isGatekeeperCommand := r.gatekeeperCommands[command]
	if !isGatekeeperCommand && (len(r.subscriptions[command]) == 0 || !r.isOpenToSubscribers()) {
		log.Debugf("%s: dropping %s, nobody is subscribed to it", r, envelope)
		r.metrics.FrameDropped(string(command))
		return
	}

	message, err := r.codec.DecodeMessage(envelope)
	if err != nil {
		r.metrics.FrameError(appmessage.FrameErrorKind(err))
		r.Fail(err)
		return
	}

	if isGatekeeperCommand {
		err := r.gatekeeper.HandleMessage(message)
		if err != nil {
			r.Fail(err)
			return
		}
	}

	for _, subscriber := range r.subscriptions[command] {
		if !r.isOpenToSubscribers() {
			return
		}
		err := subscriber.HandleMessage(message)
		if err != nil {
			r.handleSubscriberError(subscriber, command, err)
		}
	}
}

// isOpenToSubscribers returns whether ordinary subscribers may receive
// messages right now. With a gatekeeper that's only once the connection
// is Ready.
func (r *Router) isOpenToSubscribers() bool {
	state := r.State()
	if state.IsTerminal() {
		return false
	}
	return r.gatekeeper == nil || state == Ready
}

func (r *Router) handleSubscriberError(subscriber Subscriber, command appmessage.MessageCommand, err error) {
	handlerErr := &HandlerError{
		Subscriber: subscriber.Name(),
		Command:    command,
		Cause:      err,
	}
	log.Warnf("%s: %s", r, handlerErr)
	r.metrics.HandlerError(subscriber.Name())
	if r.onHandlerErrorHandler != nil {
		r.onHandlerErrorHandler(handlerErr)
	}
}

func (r *Router) sendMessage(message appmessage.Message) {
	envelope, err := r.codec.EncodeMessage(message)
	if err != nil {
		log.Errorf("%s: couldn't encode %s: %+v", r, message.Command(), err)
		return
	}
	err = r.outgoingRoute.Enqueue(envelope)
	if err != nil {
		log.Debugf("%s: not sending %s: %s", r, envelope, err)
		return
	}
	r.metrics.MessageSent(string(envelope.Command))
	log.Tracef("%s: queued %s", r, envelope)
}
