package tunnel

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
)

// Blank lines between blocks are required by the tunnel service parser.
var configTemplate = template.Must(template.New("wg").Parse(`[Interface]
PrivateKey = {{.PrivateKey}}
Address = {{.Address}}
ListenPort = {{.ListenPort}}
{{range .Peers}}
[Peer]
PublicKey = {{.PublicKey}}
AllowedIPs = {{.AllowedIPs}}
{{if .Endpoint}}Endpoint = {{.Endpoint}}
{{end}}{{if .Keepalive}}PersistentKeepalive = {{.Keepalive}}
{{end}}{{end}}`))

type renderInterface struct {
	PrivateKey string
	Address    string
	ListenPort uint16
	Peers      []renderPeer
}

type renderPeer struct {
	PublicKey  string
	AllowedIPs string
	Endpoint   string
	// Keepalive is pre-formatted so that "0" stays truthy in the template.
	Keepalive string
}

// Render produces the tunnel configuration text for spec. It performs no
// validation and has no side effects.
func Render(spec InterfaceSpec) string {
	view := renderInterface{
		PrivateKey: spec.PrivateKey,
		Address:    spec.Address,
		ListenPort: spec.Port(),
		Peers:      make([]renderPeer, 0, len(spec.Peers)),
	}
	for _, p := range spec.Peers {
		rp := renderPeer{
			PublicKey:  p.PublicKey,
			AllowedIPs: p.AllowedIPs,
			Endpoint:   p.Endpoint,
		}
		if p.Keepalive != nil {
			rp.Keepalive = strconv.Itoa(int(*p.Keepalive))
		}
		view.Peers = append(view.Peers, rp)
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, view); err != nil {
		// Only plain string fields are referenced and bytes.Buffer never
		// fails a write, so execution cannot error.
		panic(fmt.Sprintf("tunnel: render config: %v", err))
	}
	return buf.String()
}
