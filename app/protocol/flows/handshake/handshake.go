package handshake

import (
	"sync"
	"time"

	"github.com/slpdexdb/slpdexd/app/appmessage"
	peerpkg "github.com/slpdexdb/slpdexd/app/protocol/peer"
	"github.com/slpdexdb/slpdexd/app/protocol/protocolerrors"
	"github.com/slpdexdb/slpdexd/infrastructure/config"
	routerpkg "github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/router"
	"github.com/slpdexdb/slpdexd/version"
)

// HandleHandshakeContext is the interface for the context needed for the
// handshake.
type HandleHandshakeContext interface {
	Config() *config.Config

	// Nonce is sent in every version message of this node. A peer that
	// sends it back is this node itself.
	Nonce() uint64
}

// Handshake drives the version/verack exchange of a single connection.
// It's installed as the gatekeeper of the connection's router, so all of
// its methods run on the router's dispatch goroutine.
type Handshake struct {
	context HandleHandshakeContext
	router  *routerpkg.Router
	peer    *peerpkg.Peer

	timerLock sync.Mutex
	timer     *time.Timer
}

// New returns the handshake of peer, whose messages go through router.
func New(context HandleHandshakeContext, router *routerpkg.Router, peer *peerpkg.Peer) *Handshake {
	return &Handshake{
		context: context,
		router:  router,
		peer:    peer,
	}
}

// Name implements router.Subscriber.
func (h *Handshake) Name() string {
	return "handshake"
}

// Commands implements router.Gatekeeper.
func (h *Handshake) Commands() []appmessage.MessageCommand {
	return []appmessage.MessageCommand{appmessage.CmdVersion, appmessage.CmdVerAck}
}

// Start sends our version and arms the handshake timeout.
func (h *Handshake) Start() error {
	msgVersion, err := h.buildVersion()
	if err != nil {
		return err
	}
	err = h.router.Send(msgVersion)
	if err != nil {
		return err
	}
	err = h.router.SetState(routerpkg.VersionSent)
	if err != nil {
		return err
	}
	log.Debugf("Sent version to %s", h.peer)

	timeout := h.context.Config().HandshakeTimeout
	if timeout > 0 {
		h.timerLock.Lock()
		h.timer = afterFunc("Handshake.timeout-"+h.peer.ID().Short(), timeout, h.onTimeout)
		h.timerLock.Unlock()

		spawn("Handshake.stopTimerOnClose-"+h.peer.ID().Short(), func() {
			<-h.router.Stopped()
			h.stopTimer()
		})
	}
	return nil
}

func (h *Handshake) buildVersion() (*appmessage.MsgVersion, error) {
	connection := h.peer.Connection()
	me := appmessage.NewNetAddress(connection.LocalAddress(), 0)
	you := appmessage.NewNetAddress(connection.Address(), 0)

	msgVersion := appmessage.NewMsgVersion(me, you, h.context.Nonce(), 0)
	err := msgVersion.AddUserAgent(version.UserAgentName, version.Version(),
		h.context.Config().UserAgentComments...)
	if err != nil {
		return nil, err
	}
	return msgVersion, nil
}

// onTimeout runs on the timer's goroutine, so it hands the check over to
// the dispatch goroutine.
func (h *Handshake) onTimeout() {
	timeout := h.context.Config().HandshakeTimeout
	err := h.router.Execute(func() error {
		if h.router.State() == routerpkg.Ready {
			return nil
		}
		return protocolerrors.Errorf(false, "handshake with %s timed out after %s", h.peer, timeout)
	})
	if err != nil {
		log.Tracef("Handshake timeout of %s fired after the router closed", h.peer)
	}
}

func (h *Handshake) stopTimer() {
	h.timerLock.Lock()
	defer h.timerLock.Unlock()

	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// Admit implements router.Gatekeeper. Until the handshake is over only
// version and verack may arrive.
func (h *Handshake) Admit(command appmessage.MessageCommand, state routerpkg.ConnectionState) error {
	if state == routerpkg.Ready {
		return nil
	}
	if command == appmessage.CmdVersion || command == appmessage.CmdVerAck {
		return nil
	}
	return protocolerrors.Wrapf(true, protocolerrors.ErrProtocolViolation,
		"received %s from %s before the handshake completed (state %s)", command, h.peer, state)
}

// HandleMessage implements router.Subscriber.
func (h *Handshake) HandleMessage(message appmessage.Message) error {
	switch message := message.(type) {
	case *appmessage.MsgVersion:
		return h.handleVersion(message)
	case *appmessage.MsgVerAck:
		return h.handleVerAck()
	default:
		return protocolerrors.Errorf(false, "handshake got unexpected message %s", message.Command())
	}
}

func (h *Handshake) handleVersion(msgVersion *appmessage.MsgVersion) error {
	state := h.router.State()
	switch state {
	case routerpkg.AwaitingVerack, routerpkg.Ready:
		log.Debugf("Ignoring another version from %s in state %s", h.peer, state)
		return nil
	}

	minProtocolVersion := h.context.Config().MinProtocolVersion
	if msgVersion.ProtocolVersion < 0 || uint32(msgVersion.ProtocolVersion) < minProtocolVersion {
		return protocolerrors.Wrapf(false, protocolerrors.ErrUnsupportedProtocolVersion,
			"%s advertised protocol version %d, the minimum is %d",
			h.peer, msgVersion.ProtocolVersion, minProtocolVersion)
	}

	if msgVersion.Nonce == h.context.Nonce() {
		return protocolerrors.Errorf(false, "connected to self through %s", h.peer)
	}

	h.peer.UpdateFieldsFromMsgVersion(msgVersion)
	log.Debugf("Got version %d from %s (user agent %s)",
		msgVersion.ProtocolVersion, h.peer, msgVersion.UserAgent)

	err := h.router.Send(appmessage.NewMsgVerAck())
	if err != nil {
		return err
	}
	return h.router.SetState(routerpkg.AwaitingVerack)
}

func (h *Handshake) handleVerAck() error {
	state := h.router.State()
	switch state {
	case routerpkg.AwaitingVerack:
		h.stopTimer()
		h.peer.MarkHandshakeComplete()
		log.Infof("Handshake with %s completed in %s", h.peer, h.peer.HandshakeDuration())
		return h.router.MarkReady()
	case routerpkg.Ready:
		log.Debugf("Ignoring another verack from %s", h.peer)
		return nil
	default:
		return protocolerrors.Wrapf(true, protocolerrors.ErrProtocolViolation,
			"received verack from %s before its version (state %s)", h.peer, state)
	}
}
