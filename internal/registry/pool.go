package registry

import (
	"errors"
	"fmt"
	"net"

	"github.com/c-robinson/iplib"
)

// ErrPoolExhausted is returned when every host address is taken.
var ErrPoolExhausted = errors.New("device address pool exhausted")

// AddressPool hands out host addresses of an IPv4 network.
type AddressPool struct {
	network  iplib.Net4
	prefix   int
	reserved map[string]struct{}
}

// NewAddressPool builds a pool for cidr. Reserved addresses, such as the
// server's own tunnel address, are never handed out; they may carry a prefix.
func NewAddressPool(cidr string, reserved ...string) (*AddressPool, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("device pool %q: %w", cidr, err)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("device pool %q: only IPv4 pools are supported", cidr)
	}
	if ones, _ := ipnet.Mask.Size(); ones > 30 {
		return nil, fmt.Errorf("device pool %q: prefix too long to hold devices", cidr)
	}
	prefix := maskLen(ipnet)
	network := iplib.NewNet4(ipnet.IP, prefix)

	p := &AddressPool{network: network, prefix: prefix, reserved: make(map[string]struct{})}
	for _, r := range reserved {
		if r == "" {
			continue
		}
		addr, err := hostAddress(r)
		if err != nil {
			return nil, fmt.Errorf("reserved address %q: %w", r, err)
		}
		p.reserved[addr] = struct{}{}
	}
	return p, nil
}

// Network returns the pool in CIDR notation.
func (p *AddressPool) Network() string { return p.network.String() }

// Interface returns addr with the pool's prefix length, the form used for
// a device's own Address line.
func (p *AddressPool) Interface(addr string) string {
	return fmt.Sprintf("%s/%d", addr, p.prefix)
}

// Contains reports whether addr is a host address of the pool.
func (p *AddressPool) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && p.network.Contains(ip)
}

// Allocate returns the lowest host address that is neither reserved nor in
// used. The network and broadcast addresses are never returned.
func (p *AddressPool) Allocate(used []string) (string, error) {
	taken := make(map[string]struct{}, len(used)+len(p.reserved))
	for k := range p.reserved {
		taken[k] = struct{}{}
	}
	for _, u := range used {
		if addr, err := hostAddress(u); err == nil {
			taken[addr] = struct{}{}
		}
	}

	last := p.network.LastAddress()
	for ip := p.network.FirstAddress(); iplib.CompareIPs(ip, last) <= 0; ip = iplib.NextIP(ip) {
		if _, ok := taken[ip.String()]; !ok {
			return ip.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPoolExhausted, p.network.String())
}

func maskLen(n *net.IPNet) int {
	ones, _ := n.Mask.Size()
	return ones
}

// hostAddress normalizes "10.8.0.1" or "10.8.0.1/24" to "10.8.0.1".
func hostAddress(s string) (string, error) {
	if ip, _, err := net.ParseCIDR(s); err == nil {
		return ip.String(), nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return "", fmt.Errorf("not an IP address")
	}
	return ip.String(), nil
}
