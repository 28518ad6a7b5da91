package inetaddr

import (
	"net"
	"net/netip"
)

// Transport selects the socket type used when probing a port.
type Transport string

const (
	TransportUDP Transport = "udp"
	TransportTCP Transport = "tcp"
)

// IsValidPort reports whether port is in 1-65535.
func IsValidPort(port int) bool {
	return port > 0 && port <= 65535
}

// IsPortAvailable binds a throwaway socket of the requested transport to
// port on addr and reports whether the bind succeeded.
func IsPortAvailable(port int, addr Address, transport Transport) bool {
	if !IsValidPort(port) || !addr.IsValid() {
		return false
	}
	network := addr.Family().Network(transport)
	hostport := netip.AddrPortFrom(addr.Addr(), uint16(port)).String()

	switch transport {
	case TransportUDP:
		conn, err := net.ListenPacket(network, hostport)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	case TransportTCP:
		ln, err := net.Listen(network, hostport)
		if err != nil {
			return false
		}
		_ = ln.Close()
		return true
	default:
		return false
	}
}
