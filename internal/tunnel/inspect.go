package tunnel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// ErrNoConfig is returned by Inspect when no config exists for the tunnel.
var ErrNoConfig = errors.New("no config on disk for tunnel")

// ConfigSummary describes an on-disk config without its private key.
type ConfigSummary struct {
	Tunnel        string        `json:"tunnel" yaml:"tunnel"`
	Path          string        `json:"path" yaml:"path"`
	Address       string        `json:"address" yaml:"address"`
	ListenPort    uint16        `json:"listen_port" yaml:"listen_port"`
	HasPrivateKey bool          `json:"has_private_key" yaml:"has_private_key"`
	Peers         []PeerSummary `json:"peers" yaml:"peers"`
	ModTime       time.Time     `json:"modified_at" yaml:"modified_at"`
}

// PeerSummary is the public part of a [Peer] block.
type PeerSummary struct {
	PublicKey  string  `json:"public_key" yaml:"public_key"`
	AllowedIPs string  `json:"allowed_ips" yaml:"allowed_ips"`
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Keepalive  *uint16 `json:"keepalive,omitempty" yaml:"keepalive,omitempty"`
}

var iniOptions = ini.LoadOptions{
	AllowNonUniqueSections: true,
	IgnoreInlineComment:    true,
	KeyValueDelimiters:     "=",
}

// ParseConfig reads config text in the format produced by Render.
func ParseConfig(data []byte) (InterfaceSpec, error) {
	f, err := ini.LoadSources(iniOptions, data)
	if err != nil {
		return InterfaceSpec{}, fmt.Errorf("parse tunnel config: %w", err)
	}

	ifaces, err := f.SectionsByName("Interface")
	if err != nil || len(ifaces) != 1 {
		return InterfaceSpec{}, fmt.Errorf("parse tunnel config: expected exactly one [Interface] section, found %d", len(ifaces))
	}
	iface := ifaces[0]

	spec := InterfaceSpec{
		PrivateKey: iface.Key("PrivateKey").String(),
		Address:    iface.Key("Address").String(),
	}
	if iface.HasKey("ListenPort") {
		port, err := iface.Key("ListenPort").Uint()
		if err != nil || port > 65535 {
			return InterfaceSpec{}, fmt.Errorf("parse tunnel config: invalid ListenPort %q", iface.Key("ListenPort").String())
		}
		spec.ListenPort = uint16(port)
	}

	peers, err := f.SectionsByName("Peer")
	if err != nil {
		// No [Peer] sections.
		return spec, nil
	}
	for i, sec := range peers {
		p := PeerSpec{
			PublicKey:  sec.Key("PublicKey").String(),
			AllowedIPs: sec.Key("AllowedIPs").String(),
			Endpoint:   sec.Key("Endpoint").String(),
		}
		if p.PublicKey == "" {
			return InterfaceSpec{}, fmt.Errorf("parse tunnel config: peer %d has empty public key", i)
		}
		if sec.HasKey("PersistentKeepalive") {
			ka, err := sec.Key("PersistentKeepalive").Uint()
			if err != nil || ka > 65535 {
				return InterfaceSpec{}, fmt.Errorf("parse tunnel config: peer %d has invalid PersistentKeepalive", i)
			}
			p.Keepalive = Keepalive(uint16(ka))
		}
		spec.Peers = append(spec.Peers, p)
	}
	return spec, nil
}

// Summarize drops the private key from spec.
func Summarize(name string, spec InterfaceSpec) ConfigSummary {
	sum := ConfigSummary{
		Tunnel:        name,
		Address:       spec.Address,
		ListenPort:    spec.Port(),
		HasPrivateKey: strings.TrimSpace(spec.PrivateKey) != "",
		Peers:         make([]PeerSummary, 0, len(spec.Peers)),
	}
	for _, p := range spec.Peers {
		sum.Peers = append(sum.Peers, PeerSummary{
			PublicKey:  p.PublicKey,
			AllowedIPs: p.AllowedIPs,
			Endpoint:   p.Endpoint,
			Keepalive:  p.Keepalive,
		})
	}
	return sum
}

// Inspect reads the config currently on disk for name.
func (s *Supervisor) Inspect(ctx context.Context, name string) (ConfigSummary, error) {
	if err := validateName(name); err != nil {
		return ConfigSummary{}, err
	}
	release, err := s.locks.acquire(ctx, name)
	if err != nil {
		return ConfigSummary{}, err
	}
	defer release()

	path := s.ConfigPath(name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return ConfigSummary{}, fmt.Errorf("%w: %s", ErrNoConfig, name)
	}
	if err != nil {
		return ConfigSummary{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ConfigSummary{}, err
	}
	spec, err := ParseConfig(data)
	if err != nil {
		return ConfigSummary{}, err
	}

	sum := Summarize(name, spec)
	sum.Path = path
	sum.ModTime = info.ModTime()
	return sum, nil
}
