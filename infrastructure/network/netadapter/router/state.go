package router

import "fmt"

// ConnectionState is where a connection stands in its lifecycle.
type ConnectionState uint32

// Connection states, in the order a healthy connection goes through them.
const (
	Connecting ConnectionState = iota
	VersionSent
	AwaitingVerack
	Ready
	Failed
	Closed
)

var connectionStateStrings = map[ConnectionState]string{
	Connecting:     "Connecting",
	VersionSent:    "VersionSent",
	AwaitingVerack: "AwaitingVerack",
	Ready:          "Ready",
	Failed:         "Failed",
	Closed:         "Closed",
}

func (s ConnectionState) String() string {
	if str, ok := connectionStateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown ConnectionState (%d)", uint32(s))
}

// IsTerminal returns whether no further transition can happen from s.
func (s ConnectionState) IsTerminal() bool {
	return s == Failed || s == Closed
}
