// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package appmessage

import (
	"crypto/sha256"
	"fmt"
	"io"
)

// MessageHeaderSize is the number of bytes in a message header.
// Network (magic) 4 bytes + command 12 bytes + payload length 4 bytes +
// checksum 4 bytes.
const MessageHeaderSize = 24

// CommandSize is the fixed size of all commands in the common message
// header. Shorter commands must be zero padded.
const CommandSize = 12

// MaxMessagePayload is the default maximum bytes a message payload can be
// regardless of other individual limits imposed by messages themselves.
const MaxMessagePayload = 1024 * 1024 * 32 // 32MB

// MessageCommand is the ASCII name in the header of a message that
// represents its type.
type MessageCommand string

func (cmd MessageCommand) String() string {
	return string(cmd)
}

// Commands used in message headers which describe the type of message.
const (
	CmdVersion MessageCommand = "version"
	CmdVerAck  MessageCommand = "verack"
)

// Message is an interface that describes a message. Any message kind can be
// carried, raw ones as *MsgRaw.
type Message interface {
	Command() MessageCommand
	Decode(r io.Reader) error
	Encode(w io.Writer) error
}

// MessageEnvelope is one frame as it travels on the wire, minus the magic
// bytes which belong to the codec.
type MessageEnvelope struct {
	Command        MessageCommand
	Payload        []byte
	DeclaredLength uint32
	Checksum       [4]byte
}

func (e *MessageEnvelope) String() string {
	return fmt.Sprintf("%s (%d bytes, checksum %x)", e.Command, e.DeclaredLength, e.Checksum)
}

// NewMessageEnvelope builds an envelope for payload, filling in its length
// and checksum.
func NewMessageEnvelope(command MessageCommand, payload []byte) (*MessageEnvelope, error) {
	err := validateCommand("NewMessageEnvelope", command)
	if err != nil {
		return nil, err
	}
	return &MessageEnvelope{
		Command:        command,
		Payload:        payload,
		DeclaredLength: uint32(len(payload)),
		Checksum:       checksum(payload),
	}, nil
}

// checksum returns the first four bytes of sha256(sha256(payload)).
func checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var sum [4]byte
	copy(sum[:], second[:4])
	return sum
}

// makeEmptyMessage creates a message of the appropriate concrete type based
// on the command. Commands without a dedicated type return nil.
func makeEmptyMessage(command MessageCommand) Message {
	switch command {
	case CmdVersion:
		return &MsgVersion{}
	case CmdVerAck:
		return &MsgVerAck{}
	}
	return nil
}
