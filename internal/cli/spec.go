package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"safenet/internal/tunnel"
	"safenet/pkg/validation"
)

// specFile is the YAML form of a tunnel accepted by "tunnel start" and
// "render".
type specFile struct {
	Name       string     `yaml:"name" validate:"omitempty,tunnel_name"`
	PrivateKey string     `yaml:"private_key" validate:"omitempty,wgkey"`
	Address    string     `yaml:"address" validate:"required,cidr"`
	ListenPort uint16     `yaml:"listen_port"`
	Peers      []peerFile `yaml:"peers" validate:"dive"`
}

type peerFile struct {
	PublicKey  string  `yaml:"public_key" validate:"required,wgkey"`
	AllowedIPs string  `yaml:"allowed_ips" validate:"required"`
	Endpoint   string  `yaml:"endpoint" validate:"omitempty,hostname_port"`
	Keepalive  *uint16 `yaml:"keepalive"`
}

// loadSpec reads a YAML spec. A private key in privateKeyFile overrides one
// in the spec; one of the two must be present.
func loadSpec(path, privateKeyFile string) (string, tunnel.InterfaceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", tunnel.InterfaceSpec{}, fmt.Errorf("read spec: %w", err)
	}

	var f specFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return "", tunnel.InterfaceSpec{}, fmt.Errorf("parse spec %s: %w", path, err)
	}

	if privateKeyFile != "" {
		key, err := os.ReadFile(privateKeyFile)
		if err != nil {
			return "", tunnel.InterfaceSpec{}, fmt.Errorf("read private key: %w", err)
		}
		f.PrivateKey = strings.TrimSpace(string(key))
	}
	if f.PrivateKey == "" {
		return "", tunnel.InterfaceSpec{}, fmt.Errorf("spec %s has no private_key and --private-key-file was not given", path)
	}

	if err := validation.New().Struct(&f); err != nil {
		return "", tunnel.InterfaceSpec{}, fmt.Errorf("spec %s: %w", path, err)
	}

	spec := tunnel.InterfaceSpec{
		PrivateKey: f.PrivateKey,
		Address:    f.Address,
		ListenPort: f.ListenPort,
		Peers:      make([]tunnel.PeerSpec, 0, len(f.Peers)),
	}
	for _, p := range f.Peers {
		spec.Peers = append(spec.Peers, tunnel.PeerSpec{
			PublicKey:  p.PublicKey,
			AllowedIPs: p.AllowedIPs,
			Endpoint:   p.Endpoint,
			Keepalive:  p.Keepalive,
		})
	}
	return f.Name, spec, nil
}
