// Package inetaddr resolves configured sender and bind addresses and probes
// port availability before the listener binds.
package inetaddr

import (
	"fmt"
	"net/netip"
)

// Family is the IP address family of an Address.
type Family int

const (
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Network returns the Go network name for this family, e.g. "udp4".
func (f Family) Network(transport Transport) string {
	if f == FamilyIPv6 {
		return string(transport) + "6"
	}
	return string(transport) + "4"
}

// Address is an immutable, validated network address.
// Two addresses are equal when their literal strings are equal.
type Address struct {
	addr     netip.Addr
	family   Family
	hostname string
}

// Literal returns the canonical textual form of the address.
func (a Address) Literal() string {
	if !a.addr.IsValid() {
		return ""
	}
	return a.addr.String()
}

// Family returns the address family.
func (a Address) Family() Family { return a.family }

// Hostname returns the name the address was resolved from, if any.
func (a Address) Hostname() string { return a.hostname }

// Addr returns the underlying netip.Addr.
func (a Address) Addr() netip.Addr { return a.addr }

// IsValid reports whether a was produced by the resolver.
func (a Address) IsValid() bool { return a.addr.IsValid() }

// Equal compares two addresses by literal.
func (a Address) Equal(b Address) bool {
	return a.Literal() == b.Literal()
}

func (a Address) String() string {
	if a.hostname != "" {
		return fmt.Sprintf("%s (%s)", a.Literal(), a.hostname)
	}
	return a.Literal()
}

// FromAddr wraps an already parsed address. IPv4-mapped IPv6 addresses are
// unmapped, which is how senders on a dual-stack socket are reported.
func FromAddr(ip netip.Addr) (Address, bool) {
	if !ip.IsValid() || ip.Zone() != "" {
		return Address{}, false
	}
	ip = ip.Unmap()
	if ip.Is4() {
		return Address{addr: ip, family: FamilyIPv4}, true
	}
	return Address{addr: ip, family: FamilyIPv6}, true
}

// ResolveLiteral validates ip as an IPv4 or IPv6 literal.
// It returns false for anything else, including zoned IPv6 literals.
func ResolveLiteral(ip string) (Address, bool) {
	parsed, err := netip.ParseAddr(ip)
	if err != nil || parsed.Zone() != "" {
		return Address{}, false
	}
	if parsed.Is4() {
		return Address{addr: parsed, family: FamilyIPv4}, true
	}
	return Address{addr: parsed, family: FamilyIPv6}, true
}
