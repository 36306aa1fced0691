package appmessage

import (
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
)

// MsgRaw carries the payload of a command that has no dedicated message
// type. It lets subscribers handle any command without the codec knowing
// its layout.
type MsgRaw struct {
	Cmd     MessageCommand
	Payload []byte
}

// Command returns the command the payload arrived with.
func (msg *MsgRaw) Command() MessageCommand {
	return msg.Cmd
}

// Decode keeps the whole payload as is.
func (msg *MsgRaw) Decode(r io.Reader) error {
	payload, err := ioutil.ReadAll(r)
	if err != nil {
		return errors.WithStack(err)
	}
	msg.Payload = payload
	return nil
}

// Encode writes the payload as is.
func (msg *MsgRaw) Encode(w io.Writer) error {
	_, err := w.Write(msg.Payload)
	return errors.WithStack(err)
}

// NewMsgRaw returns a raw message for command.
func NewMsgRaw(command MessageCommand, payload []byte) *MsgRaw {
	return &MsgRaw{Cmd: command, Payload: payload}
}
