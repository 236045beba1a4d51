package tunnel

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultListenPort is rendered when InterfaceSpec.ListenPort is zero.
const DefaultListenPort uint16 = 51820

// InterfaceSpec describes one tunnel interface and its peers. It is built per
// start request and must not be retained once the config has been written.
type InterfaceSpec struct {
	PrivateKey string
	Address    string
	ListenPort uint16
	Peers      []PeerSpec
}

// PeerSpec describes one [Peer] block.
type PeerSpec struct {
	PublicKey  string
	AllowedIPs string
	// Endpoint is omitted from the config when empty.
	Endpoint string
	// Keepalive is omitted when nil. A non-nil zero is written out.
	Keepalive *uint16
}

// Keepalive returns a pointer suitable for PeerSpec.Keepalive.
func Keepalive(seconds uint16) *uint16 {
	return &seconds
}

// Port returns the listen port that will be rendered.
func (s InterfaceSpec) Port() uint16 {
	if s.ListenPort == 0 {
		return DefaultListenPort
	}
	return s.ListenPort
}

// String never includes the private key.
func (s InterfaceSpec) String() string {
	return fmt.Sprintf("InterfaceSpec{Address:%s ListenPort:%d Peers:%d PrivateKey:%s}",
		s.Address, s.Port(), len(s.Peers), redact(s.PrivateKey))
}

// GoString never includes the private key.
func (s InterfaceSpec) GoString() string {
	return s.String()
}

func (p PeerSpec) String() string {
	var b strings.Builder
	b.WriteString("PeerSpec{PublicKey:")
	b.WriteString(p.PublicKey)
	b.WriteString(" AllowedIPs:")
	b.WriteString(p.AllowedIPs)
	if p.Endpoint != "" {
		b.WriteString(" Endpoint:")
		b.WriteString(p.Endpoint)
	}
	if p.Keepalive != nil {
		b.WriteString(" Keepalive:")
		b.WriteString(strconv.Itoa(int(*p.Keepalive)))
	}
	b.WriteString("}")
	return b.String()
}

func redact(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	return "<redacted>"
}
