package eventjournal

import (
	"bytes"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/app/protocol/events"
	"google.golang.org/protobuf/encoding/protowire"
)

// Entry is an event as it's kept in the journal. The payload is the wire
// payload of the message behind the event: the peer's version for
// PeerReady, the observed message for MessageObserved.
type Entry struct {
	Sequence   uint64
	Kind       events.Kind
	RecordedAt time.Time
	Peer       string
	Command    appmessage.MessageCommand
	Payload    []byte
	Outbound   bool
}

// Field numbers of a serialized entry. They are part of the on-disk format
// and must never be reused.
const (
	fieldSequence   protowire.Number = 1
	fieldKind       protowire.Number = 2
	fieldRecordedAt protowire.Number = 3
	fieldPeer       protowire.Number = 4
	fieldCommand    protowire.Number = 5
	fieldPayload    protowire.Number = 6
	fieldOutbound   protowire.Number = 7
)

func newEntry(event events.Event) (*Entry, error) {
	switch event := event.(type) {
	case *events.PeerReady:
		if event.Info == nil {
			return nil, errors.Errorf("peer ready event of %s carries no version", event.Peer)
		}
		var payload bytes.Buffer
		err := event.Info.Encode(&payload)
		if err != nil {
			return nil, err
		}
		return &Entry{
			Kind:       event.Kind(),
			RecordedAt: event.ReadyAt,
			Peer:       event.Peer,
			Command:    appmessage.CmdVersion,
			Payload:    payload.Bytes(),
			Outbound:   event.Outbound,
		}, nil
	case *events.MessageObserved:
		return &Entry{
			Kind:       event.Kind(),
			RecordedAt: event.ReceivedAt,
			Peer:       event.Peer,
			Command:    event.Command,
			Payload:    event.Payload,
		}, nil
	default:
		return nil, errors.Errorf("events of kind %s can't be journaled", event.Kind())
	}
}

// Event rebuilds the event the entry was made of.
func (e *Entry) Event() (events.Event, error) {
	switch e.Kind {
	case events.KindPeerReady:
		msgVersion := &appmessage.MsgVersion{}
		err := msgVersion.Decode(bytes.NewReader(e.Payload))
		if err != nil {
			return nil, err
		}
		return &events.PeerReady{
			Peer:     e.Peer,
			Address:  peerNetAddress(e.Peer, msgVersion.Services),
			Info:     msgVersion,
			Outbound: e.Outbound,
			ReadyAt:  e.RecordedAt,
		}, nil
	case events.KindMessageObserved:
		return &events.MessageObserved{
			Peer:       e.Peer,
			Command:    e.Command,
			Payload:    e.Payload,
			ReceivedAt: e.RecordedAt,
		}, nil
	default:
		return nil, errors.Errorf("unknown journal entry kind %q", e.Kind)
	}
}

// peerNetAddress parses the address of a journaled peer, or returns nil
// when the peer wasn't reached over TCP.
func peerNetAddress(peer string, services appmessage.ServiceFlag) *appmessage.NetAddress {
	host, portString, err := net.SplitHostPort(peer)
	if err != nil {
		return nil
	}
	ip := net.ParseIP(host)
	port, err := strconv.ParseUint(portString, 10, 16)
	if ip == nil || err != nil {
		return nil
	}
	return appmessage.NewNetAddressIPPort(ip, uint16(port), services)
}

func serializeEntry(entry *Entry) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
	b = protowire.AppendVarint(b, entry.Sequence)
	b = protowire.AppendTag(b, fieldKind, protowire.BytesType)
	b = protowire.AppendString(b, string(entry.Kind))
	b = protowire.AppendTag(b, fieldRecordedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(entry.RecordedAt.UnixNano()))
	b = protowire.AppendTag(b, fieldPeer, protowire.BytesType)
	b = protowire.AppendString(b, entry.Peer)
	b = protowire.AppendTag(b, fieldCommand, protowire.BytesType)
	b = protowire.AppendString(b, string(entry.Command))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, entry.Payload)
	if entry.Outbound {
		b = protowire.AppendTag(b, fieldOutbound, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

func deserializeEntry(b []byte) (*Entry, error) {
	entry := &Entry{}
	for len(b) > 0 {
		number, wireType, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "malformed journal entry")
		}
		b = b[n:]

		switch {
		case wireType == protowire.VarintType:
			value, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed journal entry")
			}
			b = b[n:]
			switch number {
			case fieldSequence:
				entry.Sequence = value
			case fieldRecordedAt:
				entry.RecordedAt = time.Unix(0, protowire.DecodeZigZag(value))
			case fieldOutbound:
				entry.Outbound = protowire.DecodeBool(value)
			}
		case wireType == protowire.BytesType:
			value, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed journal entry")
			}
			b = b[n:]
			switch number {
			case fieldKind:
				entry.Kind = events.Kind(value)
			case fieldPeer:
				entry.Peer = string(value)
			case fieldCommand:
				entry.Command = appmessage.MessageCommand(value)
			case fieldPayload:
				entry.Payload = append([]byte{}, value...)
			}
		default:
			// Fields written by a newer version are skipped.
			n := protowire.ConsumeFieldValue(number, wireType, b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed journal entry")
			}
			b = b[n:]
		}
	}
	return entry, nil
}
