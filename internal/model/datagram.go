package model

import (
	"net/netip"
	"time"
)

// Datagram carries one received UDP payload with its sender.
// It is the transport contract between the listener and the dispatcher.
type Datagram struct {
	Payload  []byte
	Addr     netip.AddrPort
	Received time.Time
}

// Text returns the payload as a trimmed single line.
func (d Datagram) Text() string {
	return trimLine(string(d.Payload))
}
