// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package credentials

import (
	"fmt"
	"net/netip"
	"strings"
)

// IPAllowlist matches client IPs against a set of exact addresses and
// CIDR ranges. An empty allowlist allows everything.
type IPAllowlist struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// NewIPAllowlist parses a list of IP addresses and CIDR ranges.
// Containment uses real bitwise prefix matching, not string prefixes.
func NewIPAllowlist(entries []string) (*IPAllowlist, error) {
	list := &IPAllowlist{
		addrs: make(map[netip.Addr]struct{}),
	}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("parse allowlist CIDR %q: %w", entry, err)
			}
			list.prefixes = append(list.prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("parse allowlist address %q: %w", entry, err)
		}
		list.addrs[addr.Unmap()] = struct{}{}
	}

	return list, nil
}

// Empty reports whether the allowlist has no entries.
func (l *IPAllowlist) Empty() bool {
	return len(l.addrs) == 0 && len(l.prefixes) == 0
}

// Allowed reports whether the given IP is allowed. An empty list allows
// all; an unparseable IP is denied unless the list is empty.
func (l *IPAllowlist) Allowed(ip string) bool {
	if l.Empty() {
		return true
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	if _, ok := l.addrs[addr]; ok {
		return true
	}
	for _, prefix := range l.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
