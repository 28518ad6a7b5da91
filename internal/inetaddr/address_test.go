package inetaddr

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
)

func TestResolveLiteral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		ok      bool
		family  Family
		literal string
	}{
		{in: "192.168.0.1", ok: true, family: FamilyIPv4, literal: "192.168.0.1"},
		{in: "0.0.0.0", ok: true, family: FamilyIPv4, literal: "0.0.0.0"},
		{in: "255.255.255.255", ok: true, family: FamilyIPv4, literal: "255.255.255.255"},
		{in: "::1", ok: true, family: FamilyIPv6, literal: "::1"},
		{in: "2001:DB8:0:0:0:0:0:1", ok: true, family: FamilyIPv6, literal: "2001:db8::1"},
		{in: "::ffff:10.0.0.1", ok: true, family: FamilyIPv6, literal: "::ffff:10.0.0.1"},
		{in: "256.1.1.1"},
		{in: "1.2.3"},
		{in: "01.2.3.4"},
		{in: "fe80::1%eth0"},
		{in: "router.local"},
		{in: ""},
		{in: " 10.0.0.1"},
	}

	for _, tt := range tests {
		got, ok := ResolveLiteral(tt.in)
		if ok != tt.ok {
			t.Errorf("ResolveLiteral(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if !ok {
			if got.IsValid() {
				t.Errorf("ResolveLiteral(%q) returned a valid address on failure", tt.in)
			}
			continue
		}
		if got.Family() != tt.family {
			t.Errorf("ResolveLiteral(%q) family = %v, want %v", tt.in, got.Family(), tt.family)
		}
		if got.Literal() != tt.literal {
			t.Errorf("ResolveLiteral(%q) literal = %q, want %q", tt.in, got.Literal(), tt.literal)
		}
		if got.Hostname() != "" {
			t.Errorf("ResolveLiteral(%q) hostname = %q, want empty", tt.in, got.Hostname())
		}
	}
}

func TestAddressEqualByLiteral(t *testing.T) {
	t.Parallel()

	a, _ := ResolveLiteral("2001:db8::1")
	b, _ := ResolveLiteral("2001:0db8:0000::0001")
	if !a.Equal(b) {
		t.Fatalf("%s and %s should be equal", a, b)
	}
	c, _ := ResolveLiteral("2001:db8::2")
	if a.Equal(c) {
		t.Fatalf("%s and %s should differ", a, c)
	}
}

func TestFromAddrUnmapsIPv4(t *testing.T) {
	t.Parallel()

	got, ok := FromAddr(netip.MustParseAddr("::ffff:192.168.0.2"))
	if !ok {
		t.Fatal("FromAddr returned false")
	}
	if got.Family() != FamilyIPv4 || got.Literal() != "192.168.0.2" {
		t.Fatalf("FromAddr = %s/%v, want 192.168.0.2/IPv4", got.Literal(), got.Family())
	}
}

type fakeLookup struct {
	answers map[string][]net.IP
	calls   []string
}

func (f *fakeLookup) LookupIP(_ context.Context, network, host string) ([]net.IP, error) {
	f.calls = append(f.calls, network+" "+host)
	ips, ok := f.answers[network+" "+host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return ips, nil
}

func TestResolveHostnameOrdersIPv4First(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{answers: map[string][]net.IP{
		"ip4 router.lan": {net.ParseIP("192.168.0.2"), net.ParseIP("192.168.0.3")},
		"ip6 router.lan": {net.ParseIP("fd00::2")},
	}}
	r := NewResolver(lookup)

	got := r.ResolveHostname(context.Background(), "router.lan")
	want := []string{"192.168.0.2", "192.168.0.3", "fd00::2"}
	if len(got) != len(want) {
		t.Fatalf("ResolveHostname len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Literal() != want[i] {
			t.Errorf("ResolveHostname[%d] = %s, want %s", i, got[i].Literal(), want[i])
		}
		if got[i].Hostname() != "router.lan" {
			t.Errorf("ResolveHostname[%d] hostname = %q, want router.lan", i, got[i].Hostname())
		}
	}
	if got[0].Family() != FamilyIPv4 || got[2].Family() != FamilyIPv6 {
		t.Errorf("families = %v/%v, want IPv4/IPv6", got[0].Family(), got[2].Family())
	}
}

func TestResolveInput(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{answers: map[string][]net.IP{
		"ip6 v6only.lan": {net.ParseIP("fd00::9")},
	}}
	r := NewResolver(lookup)
	ctx := context.Background()

	got, ok := r.ResolveInput(ctx, "  2001:DB8::1 ")
	if !ok || got.Literal() != "2001:db8::1" {
		t.Fatalf("ResolveInput literal = %q/%v, want 2001:db8::1/true", got.Literal(), ok)
	}
	if len(lookup.calls) != 0 {
		t.Fatalf("literal input should not hit DNS, calls = %v", lookup.calls)
	}

	got, ok = r.ResolveInput(ctx, "V6ONLY.lan")
	if !ok || got.Literal() != "fd00::9" || got.Hostname() != "v6only.lan" {
		t.Fatalf("ResolveInput hostname = %s/%v, want fd00::9 (v6only.lan)", got, ok)
	}

	if _, ok := r.ResolveInput(ctx, "missing.lan"); ok {
		t.Fatal("ResolveInput should fail for an unresolvable host")
	}
	if _, ok := r.ResolveInput(ctx, "   "); ok {
		t.Fatal("ResolveInput should fail for blank input")
	}
}
