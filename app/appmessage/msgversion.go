// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package appmessage

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field in a
// version message (MsgVersion).
const MaxUserAgentLen = 256

// DefaultUserAgent for appmessage in the stack
const DefaultUserAgent = "/slpdexwire:0.1.0/"

// MinVersionPayloadLength is the smallest a version payload can be:
// protocol version 4 bytes + services 8 bytes + timestamp 8 bytes +
// two net addresses 26 bytes each + nonce 8 bytes + user agent length
// 1 byte + last block 4 bytes.
const MinVersionPayloadLength = 4 + 8 + 8 + 2*netAddressPayloadLength + 8 + 1 + 4

// MsgVersion implements the Message interface and represents a version
// message. It is used for a peer to advertise itself as soon as an outbound
// connection is made. The remote peer then uses this information along with
// its own to negotiate. The remote peer must then respond with a version
// message of its own containing the negotiated values followed by a verack
// message (MsgVerAck). This exchange must take place before any further
// communication is allowed to proceed.
type MsgVersion struct {
	// Version of the protocol the node is using.
	ProtocolVersion int32

	// Bitfield which identifies the enabled services.
	Services ServiceFlag

	// Time the message was generated. This is encoded as an int64 on the wire.
	Timestamp time.Time

	// Address of the remote peer.
	AddrYou NetAddress

	// Address of the local peer.
	AddrMe NetAddress

	// Unique value associated with message that is used to detect self
	// connections.
	Nonce uint64

	// The user agent that generated message. This is encoded as a varString
	// on the wire. This has a max length of MaxUserAgentLen.
	UserAgent string

	// Last block seen by the generator of the version message.
	LastBlock int32

	// Don't announce transactions to peer.
	DisableRelayTx bool
}

// HasService returns whether the specified service is supported by the peer
// that generated the message.
func (msg *MsgVersion) HasService(service ServiceFlag) bool {
	return msg.Services&service == service
}

// AddService adds service as a supported service by the peer generating the
// message.
func (msg *MsgVersion) AddService(service ServiceFlag) {
	msg.Services |= service
}

// Decode decodes r using the version wire encoding into the receiver. A
// payload shorter than the fixed fields require fails with
// ErrTruncatedPayload. The trailing relay flag is optional.
func (msg *MsgVersion) Decode(r io.Reader) error {
	err := msg.decode(r)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return messageError("MsgVersion.Decode", ErrTruncatedPayload,
			fmt.Sprintf("version payload is shorter than %d bytes", MinVersionPayloadLength))
	}
	return err
}

func (msg *MsgVersion) decode(r io.Reader) error {
	err := readElements(r, &msg.ProtocolVersion, &msg.Services,
		(*int64Time)(&msg.Timestamp))
	if err != nil {
		return err
	}

	err = readNetAddress(r, &msg.AddrYou)
	if err != nil {
		return err
	}
	err = readNetAddress(r, &msg.AddrMe)
	if err != nil {
		return err
	}
	err = ReadElement(r, &msg.Nonce)
	if err != nil {
		return err
	}

	userAgent, err := ReadVarString(r, MaxUserAgentLen)
	if err != nil {
		return err
	}
	msg.UserAgent = userAgent

	err = ReadElement(r, &msg.LastBlock)
	if err != nil {
		return err
	}

	var relayTx bool
	err = ReadElement(r, &relayTx)
	if errors.Is(err, io.EOF) {
		msg.DisableRelayTx = false
		return nil
	}
	if err != nil {
		return err
	}
	msg.DisableRelayTx = !relayTx
	return nil
}

// Encode encodes the receiver to w using the version wire encoding.
func (msg *MsgVersion) Encode(w io.Writer) error {
	err := validateUserAgent(msg.UserAgent)
	if err != nil {
		return err
	}

	err = writeElements(w, msg.ProtocolVersion, msg.Services,
		int64Time(msg.Timestamp))
	if err != nil {
		return err
	}

	err = writeNetAddress(w, &msg.AddrYou)
	if err != nil {
		return err
	}
	err = writeNetAddress(w, &msg.AddrMe)
	if err != nil {
		return err
	}
	err = WriteElement(w, msg.Nonce)
	if err != nil {
		return err
	}
	err = WriteVarString(w, msg.UserAgent)
	if err != nil {
		return err
	}
	return writeElements(w, msg.LastBlock, !msg.DisableRelayTx)
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgVersion) Command() MessageCommand {
	return CmdVersion
}

// NewMsgVersion returns a new version message that conforms to the
// Message interface using the passed parameters and defaults for the remaining
// fields.
func NewMsgVersion(me *NetAddress, you *NetAddress, nonce uint64,
	lastBlock int32) *MsgVersion {

	// Limit the timestamp to one second precision since the protocol
	// doesn't support better.
	return &MsgVersion{
		ProtocolVersion: int32(ProtocolVersion),
		Services:        0,
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		AddrYou:         *you,
		AddrMe:          *me,
		Nonce:           nonce,
		UserAgent:       DefaultUserAgent,
		LastBlock:       lastBlock,
		DisableRelayTx:  false,
	}
}

// validateUserAgent checks userAgent length against MaxUserAgentLen
func validateUserAgent(userAgent string) error {
	if len(userAgent) > MaxUserAgentLen {
		str := fmt.Sprintf("user agent too long [len %d, max %d]",
			len(userAgent), MaxUserAgentLen)
		return messageError("MsgVersion", ErrMalformedPayload, str)
	}
	return nil
}

// AddUserAgent adds a user agent to the user agent string for the version
// message. The version string is not defined to any strict format, although
// it is recommended to use the form "major.minor.revision" e.g. "2.6.41".
func (msg *MsgVersion) AddUserAgent(name string, version string,
	comments ...string) error {

	newUserAgent := fmt.Sprintf("%s:%s", name, version)
	if len(comments) != 0 {
		newUserAgent = fmt.Sprintf("%s(%s)", newUserAgent,
			strings.Join(comments, "; "))
	}
	newUserAgent = fmt.Sprintf("%s%s/", msg.UserAgent, newUserAgent)
	err := validateUserAgent(newUserAgent)
	if err != nil {
		return err
	}
	msg.UserAgent = newUserAgent
	return nil
}
