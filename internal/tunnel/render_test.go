package tunnel

import (
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

func TestRenderInterfaceOnly(t *testing.T) {
	out := Render(InterfaceSpec{PrivateKey: "K1", Address: "10.8.0.1/24", ListenPort: 51820})

	want := "[Interface]\nPrivateKey = K1\nAddress = 10.8.0.1/24\nListenPort = 51820\n"
	if out != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", out, want)
	}
	if strings.Count(out, "[Peer]") != 0 {
		t.Fatalf("expected no peers, got %q", out)
	}
}

func TestRenderPeerWithEndpoint(t *testing.T) {
	out := Render(InterfaceSpec{
		PrivateKey: "K1",
		Address:    "10.8.0.1/24",
		ListenPort: 51820,
		Peers: []PeerSpec{
			{PublicKey: "P1", AllowedIPs: "10.8.0.2/32", Endpoint: "1.2.3.4:51820"},
		},
	})

	if got := strings.Count(out, "[Peer]"); got != 1 {
		t.Fatalf("expected one peer block, got %d", got)
	}
	if got := strings.Count(out, "Endpoint = 1.2.3.4:51820\n"); got != 1 {
		t.Fatalf("expected one endpoint line, got %d in %q", got, out)
	}
	if strings.Contains(out, "PersistentKeepalive") {
		t.Fatalf("expected no keepalive line, got %q", out)
	}
}

func TestRenderExactFormat(t *testing.T) {
	out := Render(InterfaceSpec{
		PrivateKey: "K1",
		Address:    "10.8.0.1/24",
		ListenPort: 51821,
		Peers: []PeerSpec{
			{PublicKey: "P1", AllowedIPs: "10.8.0.2/32", Endpoint: "vpn.example.com:51820", Keepalive: Keepalive(25)},
			{PublicKey: "P2", AllowedIPs: "10.8.0.3/32, fd00::3/128"},
		},
	})

	want := strings.Join([]string{
		"[Interface]",
		"PrivateKey = K1",
		"Address = 10.8.0.1/24",
		"ListenPort = 51821",
		"",
		"[Peer]",
		"PublicKey = P1",
		"AllowedIPs = 10.8.0.2/32",
		"Endpoint = vpn.example.com:51820",
		"PersistentKeepalive = 25",
		"",
		"[Peer]",
		"PublicKey = P2",
		"AllowedIPs = 10.8.0.3/32, fd00::3/128",
		"",
	}, "\n")
	if out != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderKeepaliveZeroIsPresent(t *testing.T) {
	out := Render(InterfaceSpec{
		PrivateKey: "K1",
		Address:    "10.8.0.1/24",
		Peers:      []PeerSpec{{PublicKey: "P1", AllowedIPs: "10.8.0.2/32", Keepalive: Keepalive(0)}},
	})
	if got := strings.Count(out, "PersistentKeepalive = 0\n"); got != 1 {
		t.Fatalf("expected explicit zero keepalive to be rendered once, got %d in %q", got, out)
	}
	if strings.Contains(out, "Endpoint") {
		t.Fatalf("expected no endpoint line, got %q", out)
	}
}

func TestRenderDefaultListenPort(t *testing.T) {
	out := Render(InterfaceSpec{PrivateKey: "K1", Address: "10.8.0.1/24"})
	if !strings.Contains(out, "ListenPort = 51820\n") {
		t.Fatalf("expected default listen port, got %q", out)
	}
}

func TestRenderPeerCountMatchesInput(t *testing.T) {
	for n := 0; n <= 6; n++ {
		spec := InterfaceSpec{PrivateKey: "K1", Address: "10.8.0.1/24"}
		for i := 0; i < n; i++ {
			spec.Peers = append(spec.Peers, PeerSpec{
				PublicKey:  fmt.Sprintf("P%d", i),
				AllowedIPs: fmt.Sprintf("10.8.0.%d/32", i+2),
			})
		}
		out := Render(spec)
		if got := strings.Count(out, "[Peer]"); got != n {
			t.Fatalf("n=%d: expected %d peer blocks, got %d", n, n, got)
		}
		if got := strings.Count(out, "[Interface]"); got != 1 {
			t.Fatalf("n=%d: expected one interface block, got %d", n, got)
		}
		if n > 0 && strings.Index(out, "[Interface]") > strings.Index(out, "[Peer]") {
			t.Fatalf("n=%d: interface block must precede peers", n)
		}
		if got := strings.Count(out, "\n\n[Peer]\n"); got != n {
			t.Fatalf("n=%d: every peer block must follow a blank line, got %d", n, got)
		}
	}
}

func TestRenderIsDeterministicAndRoundTrips(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		spec := randomSpec(rng)

		first := Render(spec)
		if second := Render(spec); first != second {
			t.Fatalf("render is not deterministic for %v", spec)
		}

		endpoints, keepalives := 0, 0
		for _, p := range spec.Peers {
			if p.Endpoint != "" {
				endpoints++
			}
			if p.Keepalive != nil {
				keepalives++
			}
		}
		if got := strings.Count(first, "\nEndpoint = "); got != endpoints {
			t.Fatalf("expected %d endpoint lines, got %d", endpoints, got)
		}
		if got := strings.Count(first, "\nPersistentKeepalive = "); got != keepalives {
			t.Fatalf("expected %d keepalive lines, got %d", keepalives, got)
		}

		parsed, err := ParseConfig([]byte(first))
		if err != nil {
			t.Fatalf("parse rendered config: %v\n%s", err, first)
		}
		want := spec
		want.ListenPort = spec.Port()
		if len(want.Peers) == 0 {
			want.Peers = nil
		}
		if !reflect.DeepEqual(parsed, want) {
			t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", parsed.Peers, want.Peers)
		}
	}
}

func randomSpec(rng *rand.Rand) InterfaceSpec {
	spec := InterfaceSpec{
		PrivateKey: fmt.Sprintf("priv%04d+/abcdefghijklmnopqrstuvwxyz0123456=", rng.Intn(10000)),
		Address:    fmt.Sprintf("10.%d.0.1/24", rng.Intn(255)),
		ListenPort: uint16(rng.Intn(65536)),
	}
	for i := 0; i < rng.Intn(5); i++ {
		p := PeerSpec{
			PublicKey:  fmt.Sprintf("pub%d%d=", i, rng.Intn(1000)),
			AllowedIPs: fmt.Sprintf("10.%d.0.%d/32", rng.Intn(255), i+2),
		}
		if rng.Intn(2) == 0 {
			p.Endpoint = fmt.Sprintf("203.0.113.%d:%d", rng.Intn(255), 1024+rng.Intn(60000))
		}
		if rng.Intn(2) == 0 {
			p.Keepalive = Keepalive(uint16(rng.Intn(3) * 25))
		}
		spec.Peers = append(spec.Peers, p)
	}
	return spec
}

func TestInterfaceSpecFormattingRedactsPrivateKey(t *testing.T) {
	spec := InterfaceSpec{
		PrivateKey: "c2VjcmV0LXByaXZhdGUta2V5LW1hdGVyaWFsLTAwMDA=",
		Address:    "10.8.0.1/24",
		Peers:      []PeerSpec{{PublicKey: "P1", AllowedIPs: "10.8.0.2/32"}},
	}
	for _, verb := range []string{"%v", "%+v", "%#v", "%s"} {
		out := fmt.Sprintf(verb, spec)
		if strings.Contains(out, spec.PrivateKey) {
			t.Fatalf("%s leaked private key: %s", verb, out)
		}
		if !strings.Contains(out, "10.8.0.1/24") {
			t.Fatalf("%s dropped address: %s", verb, out)
		}
	}
}
