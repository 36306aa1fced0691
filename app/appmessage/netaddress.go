// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package appmessage

import (
	"fmt"
	"io"
	"net"

	"github.com/slpdexdb/slpdexd/util/binaryserializer"
)

// netAddressPayloadLength is the size of a NetAddress inside a version
// message: services 8 bytes + ip 16 bytes + port 2 bytes.
const netAddressPayloadLength = 26

// NetAddress defines information about a peer on the network including the
// services it supports, its IP address, and port.
type NetAddress struct {
	// Bitfield which identifies the services supported by the address.
	Services ServiceFlag

	// IP address of the peer.
	IP net.IP

	// Port the peer is using. This is encoded in big endian on the wire
	// which differs from most everything else.
	Port uint16
}

// HasService returns whether the specified service is supported by the address.
func (na *NetAddress) HasService(service ServiceFlag) bool {
	return na.Services&service == service
}

// TCPAddress converts the NetAddress to *net.TCPAddr
func (na *NetAddress) TCPAddress() *net.TCPAddr {
	return &net.TCPAddr{
		IP:   na.IP,
		Port: int(na.Port),
	}
}

func (na NetAddress) String() string {
	return net.JoinHostPort(na.IP.String(), fmt.Sprint(na.Port))
}

// NewNetAddressIPPort returns a new NetAddress using the provided IP, port, and
// supported services.
func NewNetAddressIPPort(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{
		Services: services,
		IP:       ip,
		Port:     port,
	}
}

// NewNetAddress returns a new NetAddress using the provided address and
// supported services. Addresses that aren't TCP addresses yield an
// unspecified IP and port 0, which is what peers expect when the address is
// unknown.
func NewNetAddress(addr net.Addr, services ServiceFlag) *NetAddress {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return NewNetAddressIPPort(net.IPv6zero, 0, services)
	}
	return NewNetAddressIPPort(tcpAddr.IP, uint16(tcpAddr.Port), services)
}

// readNetAddress reads an encoded NetAddress from r.
func readNetAddress(r io.Reader, na *NetAddress) error {
	var ip [16]byte
	err := readElements(r, &na.Services, &ip)
	if err != nil {
		return err
	}
	port, err := binaryserializer.Uint16(r, bigEndian)
	if err != nil {
		return err
	}

	na.IP = net.IP(ip[:])
	na.Port = port
	return nil
}

// writeNetAddress serializes a NetAddress to w.
func writeNetAddress(w io.Writer, na *NetAddress) error {
	// Ensure to always write 16 bytes even if the ip is nil.
	var ip [16]byte
	if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}
	err := writeElements(w, na.Services, ip)
	if err != nil {
		return err
	}

	return binaryserializer.PutUint16(w, bigEndian, na.Port)
}
