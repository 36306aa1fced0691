// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package appmessage

import (
	"bytes"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/util/random"
)

// TestVersion tests the MsgVersion API.
func TestVersion(t *testing.T) {
	pver := ProtocolVersion

	// Create version message data.
	lastBlock := int32(234234)
	tcpAddrMe := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8333}
	me := NewNetAddress(tcpAddrMe, SFNodeNetwork)
	tcpAddrYou := &net.TCPAddr{IP: net.ParseIP("192.168.0.1"), Port: 8333}
	you := NewNetAddress(tcpAddrYou, SFNodeNetwork)
	nonce, err := random.Uint64()
	if err != nil {
		t.Errorf("random.Uint64: error generating nonce: %v", err)
	}

	// Ensure we get the correct data back out.
	msg := NewMsgVersion(me, you, nonce, lastBlock)
	if msg.ProtocolVersion != int32(pver) {
		t.Errorf("NewMsgVersion: wrong protocol version - got %v, want %v",
			msg.ProtocolVersion, pver)
	}
	if !reflect.DeepEqual(&msg.AddrMe, me) {
		t.Errorf("NewMsgVersion: wrong me address - got %v, want %v",
			spew.Sdump(&msg.AddrMe), spew.Sdump(me))
	}
	if !reflect.DeepEqual(&msg.AddrYou, you) {
		t.Errorf("NewMsgVersion: wrong you address - got %v, want %v",
			spew.Sdump(&msg.AddrYou), spew.Sdump(you))
	}
	if msg.Nonce != nonce {
		t.Errorf("NewMsgVersion: wrong nonce - got %v, want %v",
			msg.Nonce, nonce)
	}
	if msg.UserAgent != DefaultUserAgent {
		t.Errorf("NewMsgVersion: wrong user agent - got %v, want %v",
			msg.UserAgent, DefaultUserAgent)
	}
	if msg.LastBlock != lastBlock {
		t.Errorf("NewMsgVersion: wrong last block - got %v, want %v",
			msg.LastBlock, lastBlock)
	}
	if msg.DisableRelayTx {
		t.Errorf("NewMsgVersion: disable relay tx is not false by "+
			"default - got %v, want %v", msg.DisableRelayTx, false)
	}

	err = msg.AddUserAgent("myclient", "1.2.3", "optional", "comments")
	if err != nil {
		t.Errorf("AddUserAgent: unexpected error: %v", err)
	}
	customUserAgent := DefaultUserAgent + "myclient:1.2.3(optional; comments)/"
	if msg.UserAgent != customUserAgent {
		t.Errorf("AddUserAgent: wrong user agent - got %s, want %s",
			msg.UserAgent, customUserAgent)
	}

	err = msg.AddUserAgent("mygui", "3.4.5")
	if err != nil {
		t.Errorf("AddUserAgent: unexpected error: %v", err)
	}
	customUserAgent += "mygui:3.4.5/"
	if msg.UserAgent != customUserAgent {
		t.Errorf("AddUserAgent: wrong user agent - got %s, want %s",
			msg.UserAgent, customUserAgent)
	}

	// A user agent that's too long is rejected and leaves the old one.
	err = msg.AddUserAgent(strings.Repeat("t", MaxUserAgentLen), "")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("AddUserAgent: got %v, want %v", err, ErrMalformedPayload)
	}
	if msg.UserAgent != customUserAgent {
		t.Errorf("AddUserAgent: user agent changed on failure - got %s, want %s",
			msg.UserAgent, customUserAgent)
	}

	// Version message should not have any services set by default.
	if msg.Services != 0 {
		t.Errorf("NewMsgVersion: wrong default services - got %v, want %v",
			msg.Services, 0)
	}
	if msg.HasService(SFNodeNetwork) {
		t.Errorf("HasService: SFNodeNetwork service is set")
	}

	// Ensure the command is expected value.
	wantCmd := MessageCommand("version")
	if cmd := msg.Command(); cmd != wantCmd {
		t.Errorf("NewMsgVersion: wrong command - got %v want %v",
			cmd, wantCmd)
	}

	// Ensure adding the full service node flag works.
	msg.AddService(SFNodeNetwork)
	if msg.Services != SFNodeNetwork {
		t.Errorf("AddService: wrong services - got %v, want %v",
			msg.Services, SFNodeNetwork)
	}
	if !msg.HasService(SFNodeNetwork) {
		t.Errorf("HasService: SFNodeNetwork service not set")
	}

	// Non-TCP addresses are encoded as unknown.
	unknown := NewNetAddress(&net.UnixAddr{Name: "/tmp/slpdexd.sock", Net: "unix"}, 0)
	if !unknown.IP.Equal(net.IPv6zero) || unknown.Port != 0 {
		t.Errorf("NewNetAddress: got %s for a unix address, want [::]:0", unknown)
	}
}

// baseVersion is used in the various tests as a baseline MsgVersion.
var baseVersion = &MsgVersion{
	ProtocolVersion: 70015,
	Services:        SFNodeNetwork,
	Timestamp:       time.Unix(0x495fab29, 0), // 2009-01-03 12:15:05 -0600 CST
	AddrYou: NetAddress{
		Services: SFNodeNetwork,
		IP:       net.ParseIP("192.168.0.1"),
		Port:     8333,
	},
	AddrMe: NetAddress{
		Services: SFNodeNetwork,
		IP:       net.ParseIP("127.0.0.1"),
		Port:     8333,
	},
	Nonce:     123123, // 0x1e0f3
	UserAgent: "/slpdextest:0.0.1/",
	LastBlock: 234234, // 0x392fa
}

// baseVersionEncoded is the wire encoded bytes for baseVersion.
var baseVersionEncoded = []byte{
	0x7f, 0x11, 0x01, 0x00, // Protocol version 70015
	0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // SFNodeNetwork
	0x29, 0xab, 0x5f, 0x49, 0x00, 0x00, 0x00, 0x00, // 64-bit Timestamp
	// AddrYou -- No timestamp for NetAddress in version message
	0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // SFNodeNetwork
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0xff, 0xff, 0xc0, 0xa8, 0x00, 0x01, // IP 192.168.0.1
	0x20, 0x8d, // Port 8333 in big-endian
	// AddrMe -- No timestamp for NetAddress in version message
	0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // SFNodeNetwork
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0xff, 0xff, 0x7f, 0x00, 0x00, 0x01, // IP 127.0.0.1
	0x20, 0x8d, // Port 8333 in big-endian
	0xf3, 0xe0, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, // Nonce
	0x12, // Varint for user agent length
	0x2f, 0x73, 0x6c, 0x70, 0x64, 0x65, 0x78, 0x74,
	0x65, 0x73, 0x74, 0x3a, 0x30, 0x2e, 0x30, 0x2e,
	0x31, 0x2f, // User agent
	0xfa, 0x92, 0x03, 0x00, // Last block
	0x01, // Relay tx
}

// TestVersionWire tests the MsgVersion wire encode and decode.
func TestVersionWire(t *testing.T) {
	// verRelayTxFalse is a version message with transaction relay
	// disabled.
	baseVersionCopy := *baseVersion
	verRelayTxFalse := &baseVersionCopy
	verRelayTxFalse.DisableRelayTx = true
	verRelayTxFalseEncoded := make([]byte, len(baseVersionEncoded))
	copy(verRelayTxFalseEncoded, baseVersionEncoded)
	verRelayTxFalseEncoded[len(verRelayTxFalseEncoded)-1] = 0

	tests := []struct {
		in  *MsgVersion // Message to encode
		out *MsgVersion // Expected decoded message
		buf []byte      // Wire encoding
	}{
		{baseVersion, baseVersion, baseVersionEncoded},
		{verRelayTxFalse, verRelayTxFalse, verRelayTxFalseEncoded},
	}

	for i, test := range tests {
		// Encode the message to wire format.
		var buf bytes.Buffer
		err := test.in.Encode(&buf)
		if err != nil {
			t.Errorf("Encode #%d error %v", i, err)
			continue
		}
		if !bytes.Equal(buf.Bytes(), test.buf) {
			t.Errorf("Encode #%d\n got: %s want: %s", i,
				spew.Sdump(buf.Bytes()), spew.Sdump(test.buf))
			continue
		}

		// Decode the message from wire format.
		var msg MsgVersion
		rbuf := bytes.NewBuffer(test.buf)
		err = msg.Decode(rbuf)
		if err != nil {
			t.Errorf("Decode #%d error %v", i, err)
			continue
		}
		if !reflect.DeepEqual(&msg, test.out) {
			t.Errorf("Decode #%d\n got: %s want: %s", i,
				spew.Sdump(msg), spew.Sdump(test.out))
			continue
		}
	}
}

// TestVersionOptionalRelay ensures a payload without the trailing relay
// flag decodes with relaying enabled.
func TestVersionOptionalRelay(t *testing.T) {
	var msg MsgVersion
	err := msg.Decode(bytes.NewReader(baseVersionEncoded[:len(baseVersionEncoded)-1]))
	if err != nil {
		t.Fatalf("Decode: unexpected error %v", err)
	}
	if msg.DisableRelayTx {
		t.Fatalf("Decode: DisableRelayTx is set without a relay flag")
	}
	if !reflect.DeepEqual(&msg, baseVersion) {
		t.Fatalf("Decode:\n got: %s want: %s", spew.Sdump(msg), spew.Sdump(baseVersion))
	}
}

// TestVersionTruncated ensures every payload shorter than the fixed fields
// fails as truncated.
func TestVersionTruncated(t *testing.T) {
	withoutRelay := len(baseVersionEncoded) - 1
	for i := 0; i < withoutRelay; i++ {
		var msg MsgVersion
		err := msg.Decode(bytes.NewReader(baseVersionEncoded[:i]))
		if !errors.Is(err, ErrTruncatedPayload) {
			t.Fatalf("Decode of %d bytes: got %v, want %v", i, err, ErrTruncatedPayload)
		}
	}

	// The smallest possible payload has an empty user agent and no relay
	// flag.
	minimal := *baseVersion
	minimal.UserAgent = ""
	var buf bytes.Buffer
	err := minimal.Encode(&buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != MinVersionPayloadLength+1 {
		t.Fatalf("Encode: got %d bytes, want %d", buf.Len(), MinVersionPayloadLength+1)
	}
	var msg MsgVersion
	err = msg.Decode(bytes.NewReader(buf.Bytes()[:MinVersionPayloadLength]))
	if err != nil {
		t.Fatalf("Decode of the minimal payload: %v", err)
	}
	err = msg.Decode(bytes.NewReader(buf.Bytes()[:MinVersionPayloadLength-1]))
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("Decode of one byte less than minimal: got %v, want %v", err, ErrTruncatedPayload)
	}
}

// TestVersionMalformed ensures impossible field values are refused.
func TestVersionMalformed(t *testing.T) {
	const userAgentOffset = 4 + 8 + 8 + 2*netAddressPayloadLength + 8

	// User agent longer than allowed.
	long := make([]byte, 0, 1024)
	long = append(long, baseVersionEncoded[:userAgentOffset]...)
	long = append(long, 0xfd, 0x01, 0x01) // 257
	long = append(long, bytes.Repeat([]byte{'a'}, 257)...)
	long = append(long, 0, 0, 0, 0)
	var msg MsgVersion
	err := msg.Decode(bytes.NewReader(long))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Decode of a long user agent: got %v, want %v", err, ErrMalformedPayload)
	}

	// Non-canonical user agent length.
	nonCanonical := make([]byte, 0, 1024)
	nonCanonical = append(nonCanonical, baseVersionEncoded[:userAgentOffset]...)
	nonCanonical = append(nonCanonical, 0xfd, 0x01, 0x00, 'a', 0, 0, 0, 0)
	err = msg.Decode(bytes.NewReader(nonCanonical))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Decode of a non-canonical length: got %v, want %v", err, ErrMalformedPayload)
	}

	tooLong := *baseVersion
	tooLong.UserAgent = strings.Repeat("a", MaxUserAgentLen+1)
	err = tooLong.Encode(&bytes.Buffer{})
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Encode of a long user agent: got %v, want %v", err, ErrMalformedPayload)
	}
}
