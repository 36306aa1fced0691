package signal

import (
	"testing"
	"time"
)

func TestInterruptListener(t *testing.T) {
	interrupted := InterruptListener()
	if InterruptRequested(interrupted) {
		t.Fatalf("InterruptRequested: got true before any request")
	}

	ShutdownRequestChannel <- struct{}{}
	select {
	case <-interrupted:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the interrupt channel to close")
	}
	if !InterruptRequested(interrupted) {
		t.Fatalf("InterruptRequested: got false after a shutdown request")
	}
}
