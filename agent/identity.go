package agent

import (
	"fmt"
	"net"
	"strings"

	enc "github.com/named-data/ndnd/std/encoding"
)

// Identity holds the agent's own chosen name prefix, its discovered IPv4
// address, the local forwarder's UDP port, and the fixed broadcast prefix
// under which peers are discovered.
type Identity struct {
	OwnPrefix       enc.Name
	BroadcastPrefix enc.Name
	IP              net.IP
	Port            uint16
}

func (id *Identity) String() string { return "identity" }

// DetectOwnIP scans non-loopback interfaces and returns the first IPv4
// address found, matching the original agent's "first non-loopback
// interface" policy rather than preferring any particular interface name.
func DetectOwnIP() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if strings.HasPrefix(iface.Name, "lo") {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil {
				return ip4, nil
			}
		}
	}
	return nil, fmt.Errorf("no non-loopback IPv4 interface found")
}

// NewIdentity resolves the own IPv4 address and assembles an Identity for
// the given own prefix, broadcast prefix, and forwarder port.
func NewIdentity(ownPrefix, broadcastPrefix enc.Name, port uint16) (*Identity, error) {
	ip, err := DetectOwnIP()
	if err != nil {
		return nil, err
	}
	return &Identity{
		OwnPrefix:       ownPrefix,
		BroadcastPrefix: broadcastPrefix,
		IP:              ip,
		Port:            port,
	}, nil
}
