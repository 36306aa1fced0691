package netadapter

import (
	"net"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
)

const testTimeout = 5 * time.Second

var testCodec = appmessage.NewCodec(appmessage.RegTest, appmessage.MaxMessagePayload)

func newTestConnectionPair(t *testing.T) (*NetConnection, net.Conn) {
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	netConnection, err := NewNetConnection(local, testCodec, true)
	if err != nil {
		t.Fatalf("NewNetConnection: %+v", err)
	}
	return netConnection, remote
}

func mustSerialize(t *testing.T, command appmessage.MessageCommand, payload []byte) []byte {
	frame, err := testCodec.Encode(command, payload)
	if err != nil {
		t.Fatalf("Encode: %+v", err)
	}
	return frame
}

// writeInPieces writes data to conn pieceSize bytes at a time, in the
// background.
func writeInPieces(conn net.Conn, data []byte, pieceSize int) <-chan error {
	errChan := make(chan error, 1)
	go func() {
		for len(data) > 0 {
			n := pieceSize
			if n > len(data) {
				n = len(data)
			}
			_, err := conn.Write(data[:n])
			if err != nil {
				errChan <- err
				return
			}
			data = data[n:]
		}
		errChan <- nil
	}()
	return errChan
}

func TestReadNextFrameReassembles(t *testing.T) {
	netConnection, remote := newTestConnectionPair(t)

	var stream []byte
	stream = append(stream, mustSerialize(t, appmessage.CmdVerAck, nil)...)
	stream = append(stream, mustSerialize(t, "ping", []byte{1, 2, 3, 4, 5, 6, 7, 8})...)
	stream = append(stream, mustSerialize(t, "custom", make([]byte, 10000))...)

	// Three bytes at a time splits both headers and payloads.
	errChan := writeInPieces(remote, stream, 3)

	expected := []struct {
		command appmessage.MessageCommand
		length  int
	}{
		{appmessage.CmdVerAck, 0},
		{"ping", 8},
		{"custom", 10000},
	}
	for i, test := range expected {
		envelope, err := netConnection.ReadNextFrame()
		if err != nil {
			t.Fatalf("frame #%d: ReadNextFrame: %+v", i, err)
		}
		if envelope.Command != test.command || len(envelope.Payload) != test.length {
			t.Errorf("frame #%d: got %s with %d bytes, want %s with %d bytes",
				i, envelope.Command, len(envelope.Payload), test.command, test.length)
		}
	}
	if err := <-errChan; err != nil {
		t.Fatalf("write: %+v", err)
	}
}

func TestReadNextFrameManyFramesInOneRead(t *testing.T) {
	netConnection, remote := newTestConnectionPair(t)

	var stream []byte
	for i := 0; i < 50; i++ {
		stream = append(stream, mustSerialize(t, "inv", []byte{byte(i)})...)
	}
	errChan := writeInPieces(remote, stream, len(stream))

	for i := 0; i < 50; i++ {
		envelope, err := netConnection.ReadNextFrame()
		if err != nil {
			t.Fatalf("frame #%d: ReadNextFrame: %+v", i, err)
		}
		if envelope.Payload[0] != byte(i) {
			t.Fatalf("frame #%d: frames out of order: %s", i, spew.Sdump(envelope))
		}
	}
	if err := <-errChan; err != nil {
		t.Fatalf("write: %+v", err)
	}
}

func TestReadNextFrameErrors(t *testing.T) {
	t.Run("bad checksum", func(t *testing.T) {
		netConnection, remote := newTestConnectionPair(t)
		frame := mustSerialize(t, "ping", []byte{1, 2, 3, 4, 5, 6, 7, 8})
		frame[len(frame)-1] ^= 0xff
		writeInPieces(remote, frame, len(frame))

		_, err := netConnection.ReadNextFrame()
		if !errors.Is(err, appmessage.ErrChecksumMismatch) {
			t.Fatalf("want ErrChecksumMismatch, got %+v", err)
		}
		if errors.Is(err, ErrDisconnected) {
			t.Fatalf("a frame error must not look like a disconnect: %+v", err)
		}
	})

	t.Run("wrong network", func(t *testing.T) {
		netConnection, remote := newTestConnectionPair(t)
		mainNetCodec := appmessage.NewCodec(appmessage.MainNet, appmessage.MaxMessagePayload)
		frame, err := mainNetCodec.Encode(appmessage.CmdVerAck, nil)
		if err != nil {
			t.Fatalf("Encode: %+v", err)
		}
		writeInPieces(remote, frame, len(frame))

		_, err = netConnection.ReadNextFrame()
		if !errors.Is(err, appmessage.ErrBadMagic) {
			t.Fatalf("want ErrBadMagic, got %+v", err)
		}
	})

	t.Run("closed mid-frame", func(t *testing.T) {
		netConnection, remote := newTestConnectionPair(t)
		frame := mustSerialize(t, "ping", []byte{1, 2, 3, 4, 5, 6, 7, 8})
		go func() {
			remote.Write(frame[:10])
			remote.Close()
		}()

		_, err := netConnection.ReadNextFrame()
		if !errors.Is(err, ErrDisconnected) {
			t.Fatalf("want ErrDisconnected, got %+v", err)
		}
	})
}

func TestWriteFrame(t *testing.T) {
	netConnection, remote := newTestConnectionPair(t)

	envelope, err := appmessage.NewMessageEnvelope("ping", []byte{8, 7, 6, 5, 4, 3, 2, 1})
	if err != nil {
		t.Fatalf("NewMessageEnvelope: %+v", err)
	}
	expected := mustSerialize(t, "ping", envelope.Payload)

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len(expected))
		n := 0
		for n < len(buf) {
			read, err := remote.Read(buf[n:])
			if err != nil {
				break
			}
			n += read
		}
		received <- buf[:n]
	}()

	err = netConnection.WriteFrame(envelope)
	if err != nil {
		t.Fatalf("WriteFrame: %+v", err)
	}
	select {
	case got := <-received:
		if string(got) != string(expected) {
			t.Fatalf("wrote %x, want %x", got, expected)
		}
	case <-time.After(testTimeout):
		t.Fatalf("timed out reading the frame")
	}

	netConnection.Disconnect()
	if netConnection.IsConnected() {
		t.Fatalf("connection still reports being connected")
	}
	err = netConnection.WriteFrame(envelope)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("want ErrDisconnected after Disconnect, got %+v", err)
	}
	// Disconnecting twice is fine.
	netConnection.Disconnect()
}
