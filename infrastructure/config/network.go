package config

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
)

// Params defines a network by its magic and default port.
type Params struct {
	// Name is used to namespace the data and log directories.
	Name string

	// Net is the magic every message on the network starts with.
	Net appmessage.BitcoinNet

	// DefaultPort is the port peers on the network listen on.
	DefaultPort string
}

// MainNetParams defines the main Bitcoin Cash network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         appmessage.MainNet,
	DefaultPort: "8333",
}

// TestNet3Params defines the test network (version 3).
var TestNet3Params = Params{
	Name:        "testnet3",
	Net:         appmessage.TestNet3,
	DefaultPort: "18333",
}

// RegressionNetParams defines the regression test network.
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         appmessage.RegTest,
	DefaultPort: "18444",
}

// NetworkFlags holds the network configuration, that is which network is selected.
type NetworkFlags struct {
	TestNet        bool `long:"testnet" description:"Use the test network"`
	RegressionTest bool `long:"regtest" description:"Use the regression test network"`

	ActiveNetParams *Params
}

// ResolveNetwork parses the network command line argument and sets NetParams accordingly.
// It returns error if more than one network was selected, nil otherwise.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser) error {
	// NetParams holds the selected network parameters. Default value is main-net.
	networkFlags.ActiveNetParams = &MainNetParams
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if networkFlags.TestNet {
		numNets++
		networkFlags.ActiveNetParams = &TestNet3Params
	}
	if networkFlags.RegressionTest {
		numNets++
		networkFlags.ActiveNetParams = &RegressionNetParams
	}
	if numNets > 1 {
		message := "Multiple networks parameters (testnet, regtest) cannot be used " +
			"together. Please choose only one network"
		err := errors.Errorf(message)
		fmt.Fprintln(os.Stderr, err)
		if parser != nil {
			parser.WriteHelp(os.Stderr)
		}
		return err
	}

	return nil
}

// NetParams returns the ActiveNetParams
func (networkFlags *NetworkFlags) NetParams() *Params {
	return networkFlags.ActiveNetParams
}
