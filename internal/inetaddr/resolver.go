package inetaddr

import (
	"context"
	"log"
	"net"
	"net/netip"
	"strings"
)

// Lookuper is the narrow DNS contract used by Resolver.
// *net.Resolver satisfies it.
type Lookuper interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Resolver turns configured host strings into Addresses.
type Resolver struct {
	lookup Lookuper
}

// NewResolver creates a resolver. A nil Lookuper uses net.DefaultResolver.
func NewResolver(lookup Lookuper) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	return &Resolver{lookup: lookup}
}

// ResolveHostname looks up A records, then AAAA records, for name and returns
// every address found tagged with name. Lookup failures yield no entries.
func (r *Resolver) ResolveHostname(ctx context.Context, name string) []Address {
	var out []Address
	for _, fam := range []Family{FamilyIPv4, FamilyIPv6} {
		network := "ip4"
		if fam == FamilyIPv6 {
			network = "ip6"
		}
		ips, err := r.lookup.LookupIP(ctx, network, name)
		if err != nil {
			log.Printf("inetaddr: lookup %s %s: %v", network, name, err)
			continue
		}
		for _, ip := range ips {
			parsed, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			if fam == FamilyIPv4 {
				parsed = parsed.Unmap()
				if !parsed.Is4() {
					continue
				}
			} else if parsed.Is4In6() {
				continue
			}
			out = append(out, Address{addr: parsed, family: fam, hostname: name})
		}
	}
	return out
}

// ResolveInput accepts either a literal address or a hostname. Input is
// trimmed and lowercased; hostnames resolve to their first address.
func (r *Resolver) ResolveInput(ctx context.Context, text string) (Address, bool) {
	target := strings.ToLower(strings.TrimSpace(text))
	if target == "" {
		return Address{}, false
	}
	if addr, ok := ResolveLiteral(target); ok {
		return addr, true
	}
	all := r.ResolveHostname(ctx, target)
	if len(all) == 0 {
		return Address{}, false
	}
	return all[0], true
}
