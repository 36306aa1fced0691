// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package appmessage

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion is the latest protocol version this package supports.
const ProtocolVersion uint32 = 70015

// ServiceFlag identifies services supported by a peer.
type ServiceFlag uint64

const (
	// SFNodeNetwork is a flag used to indicate a peer is a full node.
	SFNodeNetwork ServiceFlag = 1 << 0

	// SFNodeGetUTXO is a flag used to indicate a peer supports the
	// getutxos and utxos commands (BIP0064).
	SFNodeGetUTXO ServiceFlag = 1 << 1

	// SFNodeBloom is a flag used to indicate a peer supports bloom
	// filtering.
	SFNodeBloom ServiceFlag = 1 << 2

	// SFNodeXthin is a flag used to indicate a peer supports xthin blocks.
	SFNodeXthin ServiceFlag = 1 << 4

	// SFNodeBitcoinCash is a flag used to indicate a peer follows the
	// Bitcoin Cash chain.
	SFNodeBitcoinCash ServiceFlag = 1 << 5

	// SFNodeNetworkLimited is a flag used to indicate a peer only serves
	// the most recent blocks.
	SFNodeNetworkLimited ServiceFlag = 1 << 10
)

// Map of service flags back to their constant names for pretty printing.
var sfStrings = map[ServiceFlag]string{
	SFNodeNetwork:        "SFNodeNetwork",
	SFNodeGetUTXO:        "SFNodeGetUTXO",
	SFNodeBloom:          "SFNodeBloom",
	SFNodeXthin:          "SFNodeXthin",
	SFNodeBitcoinCash:    "SFNodeBitcoinCash",
	SFNodeNetworkLimited: "SFNodeNetworkLimited",
}

// orderedSFStrings is an ordered list of service flags from highest to
// lowest.
var orderedSFStrings = []ServiceFlag{
	SFNodeNetwork,
	SFNodeGetUTXO,
	SFNodeBloom,
	SFNodeXthin,
	SFNodeBitcoinCash,
	SFNodeNetworkLimited,
}

// String returns the ServiceFlag in human-readable form.
func (f ServiceFlag) String() string {
	// No flags are set.
	if f == 0 {
		return "0x0"
	}

	// Add individual bit flags.
	s := ""
	for _, flag := range orderedSFStrings {
		if f&flag == flag {
			s += sfStrings[flag] + "|"
			f -= flag
		}
	}

	// Add any remaining flags which aren't accounted for as hex.
	s = strings.TrimRight(s, "|")
	if f != 0 {
		s += "|0x" + strconv.FormatUint(uint64(f), 16)
	}
	s = strings.TrimLeft(s, "|")
	return s
}

// BitcoinNet represents which network a message belongs to. It is written
// little endian, so the constants below read reversed compared to the bytes
// on the wire.
type BitcoinNet uint32

// Constants used to indicate the message network.
const (
	// MainNet represents the main Bitcoin Cash network.
	MainNet BitcoinNet = 0xe8f3e1e3

	// TestNet3 represents the test network (version 3).
	TestNet3 BitcoinNet = 0xf4f3e5f4

	// RegTest represents the regression test network.
	RegTest BitcoinNet = 0xfabfb5da
)

// bnStrings is a map of networks back to their constant names for
// pretty printing.
var bnStrings = map[BitcoinNet]string{
	MainNet:  "MainNet",
	TestNet3: "TestNet3",
	RegTest:  "RegTest",
}

// String returns the BitcoinNet in human-readable form.
func (n BitcoinNet) String() string {
	if s, ok := bnStrings[n]; ok {
		return s
	}

	return fmt.Sprintf("Unknown BitcoinNet (%d)", uint32(n))
}
