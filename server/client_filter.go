package server

import (
	"net"
	"net/netip"
	"strings"

	"github.com/pkg/errors"
)

// addrMatcher holds single addresses and CIDR blocks, all in unmapped form
type addrMatcher struct {
	addrs    []netip.Addr
	prefixes []netip.Prefix
}

func newAddrMatcher(filters []string) (*addrMatcher, error) {
	m := &addrMatcher{}

	for _, filter := range filters {
		filter = strings.TrimSpace(filter)
		if filter == "" {
			continue
		}
		if strings.Contains(filter, "/") {
			prefix, err := netip.ParsePrefix(filter)
			if err != nil {
				return nil, err
			}
			m.prefixes = append(m.prefixes, prefix.Masked())
		} else {
			addr, err := netip.ParseAddr(filter)
			if err != nil {
				return nil, err
			}
			m.addrs = append(m.addrs, addr.Unmap())
		}
	}

	return m, nil
}

// Match compares with IPv4-mapped addresses such as ::ffff:127.0.0.1 unmapped
func (m *addrMatcher) Match(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, a := range m.addrs {
		if a == addr {
			return true
		}
	}
	for _, p := range m.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (m *addrMatcher) Empty() bool {
	return len(m.addrs) == 0 && len(m.prefixes) == 0
}

// ClientFilter decides which client IP addresses may talk to the front end at all
type ClientFilter struct {
	allow *addrMatcher
	deny  *addrMatcher
}

// NewClientFilter builds a filter from addresses or CIDRs. Allows take precedence:
// when any are given, everything else is denied and the denies are ignored.
func NewClientFilter(allows []string, denies []string) (*ClientFilter, error) {
	allow, err := newAddrMatcher(allows)
	if err != nil {
		return nil, errors.Wrap(err, "invalid allow filter")
	}
	deny, err := newAddrMatcher(denies)
	if err != nil {
		return nil, errors.Wrap(err, "invalid deny filter")
	}
	return &ClientFilter{
		allow: allow,
		deny:  deny,
	}, nil
}

func (f *ClientFilter) Allow(addrPort netip.AddrPort) bool {
	if f == nil {
		return true
	}
	if !f.allow.Empty() {
		return f.allow.Match(addrPort.Addr())
	}
	if !f.deny.Empty() {
		return !f.deny.Match(addrPort.Addr())
	}
	return true
}

// AllowAddr is Allow for a connection's remote address. Addresses that are not IP based,
// such as those of in-memory pipes, are only allowed when no filter is configured.
func (f *ClientFilter) AllowAddr(addr net.Addr) bool {
	if f == nil || (f.allow.Empty() && f.deny.Empty()) {
		return true
	}
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return f.Allow(tcpAddr.AddrPort())
	}
	addrPort, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return false
	}
	return f.Allow(addrPort)
}
