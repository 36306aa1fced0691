package appmessage

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Codec turns payloads into frames and frames into messages for one
// network. It holds no state and is safe for concurrent use.
type Codec struct {
	Net              BitcoinNet
	MaxPayloadLength uint32
}

// NewCodec returns a Codec for the given network and maximum payload
// length.
func NewCodec(net BitcoinNet, maxPayloadLength uint32) *Codec {
	return &Codec{
		Net:              net,
		MaxPayloadLength: maxPayloadLength,
	}
}

// Decode consumes exactly one frame from the front of buf and returns it
// together with the number of bytes it took. Bytes past the frame are left
// untouched. ErrIncompleteFrame is returned if buf holds only part of a
// frame; whatever part of the header is present has been validated by then.
func (c *Codec) Decode(buf []byte) (*MessageEnvelope, int, error) {
	const (
		commandOffset  = 4
		lengthOffset   = commandOffset + CommandSize
		checksumOffset = lengthOffset + 4
	)

	if len(buf) >= commandOffset {
		magic := BitcoinNet(littleEndian.Uint32(buf[:commandOffset]))
		if magic != c.Net {
			str := fmt.Sprintf("message from other network [%s], expected [%s]", magic, c.Net)
			return nil, 0, messageError("Decode", ErrBadMagic, str)
		}
	}
	if len(buf) < lengthOffset {
		return nil, 0, errors.WithStack(ErrIncompleteFrame)
	}

	command, err := parseCommand(buf[commandOffset:lengthOffset])
	if err != nil {
		return nil, 0, err
	}
	if len(buf) < checksumOffset {
		return nil, 0, errors.WithStack(ErrIncompleteFrame)
	}

	declaredLength := littleEndian.Uint32(buf[lengthOffset:checksumOffset])
	if declaredLength > c.MaxPayloadLength {
		str := fmt.Sprintf("message payload is too large - header "+
			"indicates %d bytes, but max message payload is %d "+
			"bytes.", declaredLength, c.MaxPayloadLength)
		return nil, 0, messageError("Decode", ErrOversizedMessage, str)
	}

	frameLength := MessageHeaderSize + int(declaredLength)
	if len(buf) < frameLength {
		return nil, 0, errors.WithStack(ErrIncompleteFrame)
	}

	envelope := &MessageEnvelope{
		Command:        command,
		DeclaredLength: declaredLength,
		Payload:        make([]byte, declaredLength),
	}
	copy(envelope.Checksum[:], buf[checksumOffset:MessageHeaderSize])
	copy(envelope.Payload, buf[MessageHeaderSize:frameLength])

	sum := checksum(envelope.Payload)
	if sum != envelope.Checksum {
		str := fmt.Sprintf("payload checksum failed - header "+
			"indicates %x, but actual checksum is %x.",
			envelope.Checksum, sum)
		return nil, 0, messageError("Decode", ErrChecksumMismatch, str)
	}

	return envelope, frameLength, nil
}

// Encode returns the frame for the given command and payload.
func (c *Codec) Encode(command MessageCommand, payload []byte) ([]byte, error) {
	envelope, err := NewMessageEnvelope(command, payload)
	if err != nil {
		return nil, err
	}
	return c.Serialize(envelope)
}

// Serialize returns the frame for an already built envelope.
func (c *Codec) Serialize(envelope *MessageEnvelope) ([]byte, error) {
	err := validateCommand("Serialize", envelope.Command)
	if err != nil {
		return nil, err
	}
	if uint32(len(envelope.Payload)) != envelope.DeclaredLength {
		str := fmt.Sprintf("declared length %d doesn't match payload length %d",
			envelope.DeclaredLength, len(envelope.Payload))
		return nil, messageError("Serialize", ErrMalformedPayload, str)
	}
	if envelope.DeclaredLength > c.MaxPayloadLength {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload is %d bytes",
			envelope.DeclaredLength, c.MaxPayloadLength)
		return nil, messageError("Serialize", ErrOversizedMessage, str)
	}

	var command [CommandSize]byte
	copy(command[:], envelope.Command)

	frame := bytes.NewBuffer(make([]byte, 0, MessageHeaderSize+len(envelope.Payload)))
	err = WriteElement(frame, c.Net)
	if err != nil {
		return nil, err
	}
	frame.Write(command[:])
	err = writeElements(frame, envelope.DeclaredLength, envelope.Checksum)
	if err != nil {
		return nil, err
	}
	frame.Write(envelope.Payload)
	return frame.Bytes(), nil
}

// EncodeMessage serializes message into an envelope.
func (c *Codec) EncodeMessage(message Message) (*MessageEnvelope, error) {
	var payload bytes.Buffer
	err := message.Encode(&payload)
	if err != nil {
		return nil, err
	}
	if uint32(payload.Len()) > c.MaxPayloadLength {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload is %d bytes",
			payload.Len(), c.MaxPayloadLength)
		return nil, messageError("EncodeMessage", ErrOversizedMessage, str)
	}
	return NewMessageEnvelope(message.Command(), payload.Bytes())
}

// DecodeMessage parses the payload of envelope into the message type
// registered for its command, or into a *MsgRaw for any other command.
func (c *Codec) DecodeMessage(envelope *MessageEnvelope) (Message, error) {
	message := makeEmptyMessage(envelope.Command)
	if message == nil {
		message = &MsgRaw{Cmd: envelope.Command}
	}
	err := message.Decode(bytes.NewReader(envelope.Payload))
	if err != nil {
		return nil, err
	}
	return message, nil
}

// parseCommand validates the fixed size command field and strips its
// padding. A command is one or more printable ASCII characters followed only
// by NUL bytes.
func parseCommand(field []byte) (MessageCommand, error) {
	end := bytes.IndexByte(field, 0)
	if end == -1 {
		end = len(field)
	}
	for _, b := range field[end:] {
		if b != 0 {
			return "", messageError("parseCommand", ErrMalformedCommand,
				fmt.Sprintf("command %q has bytes after its padding", field))
		}
	}
	command := MessageCommand(field[:end])
	err := validateCommand("parseCommand", command)
	if err != nil {
		return "", err
	}
	return command, nil
}

// ValidateCommand returns an ErrMalformedCommand error if command can't be
// carried in a message header.
func ValidateCommand(command MessageCommand) error {
	return validateCommand("ValidateCommand", command)
}

func validateCommand(f string, command MessageCommand) error {
	if len(command) == 0 {
		return messageError(f, ErrMalformedCommand, "command is empty")
	}
	if len(command) > CommandSize {
		return messageError(f, ErrMalformedCommand,
			fmt.Sprintf("command [%s] is too long [max %d]", command, CommandSize))
	}
	for i := 0; i < len(command); i++ {
		if command[i] <= 0x20 || command[i] >= 0x7f {
			return messageError(f, ErrMalformedCommand,
				fmt.Sprintf("command %q has a non printable character", string(command)))
		}
	}
	return nil
}
