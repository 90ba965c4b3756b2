// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"fmt"
	"net"
)

// ParseCIDRs parses a list of CIDR strings. Bare IPs are accepted and
// treated as /32 (or /128) networks.
func ParseCIDRs(values []string) ([]*net.IPNet, error) {
	out := make([]*net.IPNet, 0, len(values))
	for _, v := range values {
		if _, ipNet, err := net.ParseCIDR(v); err == nil {
			out = append(out, ipNet)
			continue
		}
		ip := net.ParseIP(v)
		if ip == nil {
			return nil, fmt.Errorf("invalid CIDR or IP: %q", v)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out, nil
}

// IsIPAllowed reports whether ip falls inside any of the given networks.
// An empty list allows nothing.
func IsIPAllowed(ip net.IP, networks []*net.IPNet) bool {
	for _, n := range networks {
		if n != nil && n.Contains(ip) {
			return true
		}
	}
	return false
}
