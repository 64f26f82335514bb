package artnet

import (
	"fmt"
	"net"
)

// DefaultBroadcastNetwork is the primary network CIDR the Art-Net
// standard assigns.
const DefaultBroadcastNetwork = "2.0.0.0/8"

// FindBroadcastIP finds the interface with an IPv4 address inside the
// given network and returns that interface's directed broadcast address.
// Without a match it falls back to the limited broadcast address.
func FindBroadcastIP(cidr string) (net.IP, error) {
	if cidr == "" {
		cidr = DefaultBroadcastNetwork
	}
	_, cidrNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("bad broadcast network %q: %w", cidr, err)
	}

	address, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("error getting ips: %w", err)
	}

	for _, addr := range address {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil {
			continue
		}
		if cidrNet.Contains(ip) {
			return broadcastOf(ip, ipNet.Mask), nil
		}
	}

	return net.IPv4bcast, nil
}

// broadcastOf fills the host bits of the interface network with ones.
func broadcastOf(ip net.IP, mask net.IPMask) net.IP {
	if len(mask) != net.IPv4len {
		return net.IPv4bcast
	}
	out := make(net.IP, net.IPv4len)
	for i := range out {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}
