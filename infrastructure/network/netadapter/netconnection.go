package netadapter

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/infrastructure/metrics"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/id"
	routerpkg "github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/router"
)

// ErrDisconnected is the cause of every error that comes from the
// connection itself going away.
var ErrDisconnected = errors.New("disconnected")

const readChunkSize = 4096

// NetConnection is a framed connection to a single peer. It owns the
// underlying net.Conn.
type NetConnection struct {
	connection net.Conn
	id         *id.ID
	codec      *appmessage.Codec
	metrics    *metrics.Metrics
	isOutbound bool
	router     *routerpkg.Router

	readBuffer []byte
	writeLock  sync.Mutex

	isConnected uint32
}

// NewNetConnection wraps connection. isOutbound tells whether we dialed
// it or accepted it.
func NewNetConnection(connection net.Conn, codec *appmessage.Codec, isOutbound bool) (*NetConnection, error) {
	connectionID, err := id.GenerateID()
	if err != nil {
		return nil, err
	}
	return &NetConnection{
		connection:  connection,
		id:          connectionID,
		codec:       codec,
		isOutbound:  isOutbound,
		isConnected: 1,
	}, nil
}

func (c *NetConnection) String() string {
	return fmt.Sprintf("<%s: %s>", c.id.Short(), c.connection.RemoteAddr())
}

// ID returns the ID associated with this connection
func (c *NetConnection) ID() *id.ID {
	return c.id
}

// Address returns the address of the peer.
func (c *NetConnection) Address() net.Addr {
	return c.connection.RemoteAddr()
}

// LocalAddress returns our end of the connection.
func (c *NetConnection) LocalAddress() net.Addr {
	return c.connection.LocalAddr()
}

// IsOutbound returns whether we initiated the connection.
func (c *NetConnection) IsOutbound() bool {
	return c.isOutbound
}

// IsConnected returns whether the connection is still open.
func (c *NetConnection) IsConnected() bool {
	return atomic.LoadUint32(&c.isConnected) != 0
}

// Router returns the router of the connection, once started.
func (c *NetConnection) Router() *routerpkg.Router {
	return c.router
}

// ReadNextFrame blocks until a whole frame arrived and returns it. Bytes
// that arrived past the frame are kept for the next call. Frame errors are
// returned as they are; anything wrong with the stream itself wraps
// ErrDisconnected.
func (c *NetConnection) ReadNextFrame() (*appmessage.MessageEnvelope, error) {
	chunk := make([]byte, readChunkSize)
	for {
		if len(c.readBuffer) > 0 {
			envelope, n, err := c.codec.Decode(c.readBuffer)
			if err == nil {
				c.readBuffer = append(c.readBuffer[:0], c.readBuffer[n:]...)
				return envelope, nil
			}
			if !errors.Is(err, appmessage.ErrIncompleteFrame) {
				return nil, err
			}
		}

		n, err := c.connection.Read(chunk)
		c.readBuffer = append(c.readBuffer, chunk[:n]...)
		if err != nil {
			if n > 0 {
				// Let the loop decode what we got; the error will be
				// returned again by the next Read.
				continue
			}
			return nil, errors.Wrapf(ErrDisconnected, "error reading from %s: %s", c, err)
		}
	}
}

// WriteFrame writes envelope as a single frame. Concurrent calls never
// interleave their bytes.
func (c *NetConnection) WriteFrame(envelope *appmessage.MessageEnvelope) error {
	frame, err := c.codec.Serialize(envelope)
	if err != nil {
		return err
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	_, err = c.connection.Write(frame)
	if err != nil {
		return errors.Wrapf(ErrDisconnected, "error writing %s to %s: %s", envelope.Command, c, err)
	}
	return nil
}

// bind ties the connection to router. Closing the router closes the
// connection.
func (c *NetConnection) bind(router *routerpkg.Router) {
	c.router = router
	router.SetOnCloseHandler(c.Disconnect)
}

// start launches the reader and the writer of a bound connection.
func (c *NetConnection) start() {
	spawn("NetConnection.readLoop-"+c.id.Short(), c.readLoop)
	spawn("NetConnection.writeLoop-"+c.id.Short(), c.writeLoop)
}

func (c *NetConnection) readLoop() {
	for {
		envelope, err := c.ReadNextFrame()
		if err != nil {
			if errors.Is(err, ErrDisconnected) {
				c.router.CloseWithError(err)
				return
			}
			c.metrics.FrameError(appmessage.FrameErrorKind(err))
			log.Warnf("Received an invalid frame from %s: %s", c, err)
			c.router.Fail(err)
			return
		}
		log.Tracef("Received %s from %s", envelope, c)

		err = c.router.EnqueueIncomingFrame(envelope)
		if err != nil {
			return
		}
	}
}

func (c *NetConnection) writeLoop() {
	for {
		envelope, err := c.router.OutgoingRoute().Dequeue()
		if err != nil {
			return
		}
		err = c.WriteFrame(envelope)
		if err != nil {
			c.router.CloseWithError(err)
			return
		}
		log.Tracef("Sent %s to %s", envelope, c)
	}
}

// Disconnect closes the underlying connection. Calling it again does
// nothing.
func (c *NetConnection) Disconnect() {
	if !atomic.CompareAndSwapUint32(&c.isConnected, 1, 0) {
		return
	}

	log.Debugf("Disconnecting from %s", c)
	err := c.connection.Close()
	if err != nil {
		log.Debugf("Error closing %s: %s", c, err)
	}
}
