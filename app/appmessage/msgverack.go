// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package appmessage

import "io"

// MsgVerAck defines a verack message which is used for a peer to
// acknowledge a version message (MsgVersion) after it has used the
// information to negotiate parameters. It implements the Message interface.
//
// This message has no payload.
type MsgVerAck struct{}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgVerAck) Command() MessageCommand {
	return CmdVerAck
}

// Decode is a no-op: a verack carries no payload and anything a peer
// appends is ignored.
func (msg *MsgVerAck) Decode(r io.Reader) error {
	return nil
}

// Encode writes nothing.
func (msg *MsgVerAck) Encode(w io.Writer) error {
	return nil
}

// NewMsgVerAck returns a new verack message that conforms to the
// Message interface.
func NewMsgVerAck() *MsgVerAck {
	return &MsgVerAck{}
}
