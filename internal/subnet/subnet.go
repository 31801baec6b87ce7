// Package subnet builds the boolean "is this address in the allowed
// subnet" predicate spec section 1 describes as an external
// collaborator: the core (tftp.Config.Allow) only ever consumes the
// resulting func(string) bool, never CIDR syntax itself.
package subnet

import (
	"fmt"
	"net"
)

// Predicate parses an IPv4 address and dotted-quad mask into a
// func(string) bool suitable for tftp.Config.Allow, per spec section 6's
// configuration record (clientipaddress, clientmask).
func Predicate(address, mask string) (func(ip string) bool, error) {
	addr := net.ParseIP(address)
	if addr == nil {
		return nil, fmt.Errorf("subnet: invalid address %q", address)
	}
	addr = addr.To4()
	if addr == nil {
		return nil, fmt.Errorf("subnet: %q is not IPv4 (source is IPv4-only, spec section 1)", address)
	}

	maskIP := net.ParseIP(mask)
	if maskIP == nil {
		return nil, fmt.Errorf("subnet: invalid mask %q", mask)
	}
	maskIP4 := maskIP.To4()
	if maskIP4 == nil {
		return nil, fmt.Errorf("subnet: mask %q is not IPv4", mask)
	}

	network := &net.IPNet{IP: addr.Mask(net.IPMask(maskIP4)), Mask: net.IPMask(maskIP4)}

	return func(ip string) bool {
		candidate := net.ParseIP(ip)
		if candidate == nil {
			return false
		}
		return network.Contains(candidate)
	}, nil
}

// PredicateFromCIDR builds the same predicate from CIDR notation
// ("10.0.0.0/24"), a convenience for callers that already have a
// single string rather than address+mask.
func PredicateFromCIDR(cidr string) (func(ip string) bool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("subnet: %w", err)
	}
	return func(ip string) bool {
		candidate := net.ParseIP(ip)
		if candidate == nil {
			return false
		}
		return network.Contains(candidate)
	}, nil
}
