package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"safenet/internal/xexec"
)

func TestInspectSummarizesWithoutPrivateKey(t *testing.T) {
	runner := &fakeRunner{fn: func(_ context.Context, argv []string) (xexec.Result, error) {
		return exitWith(argv, 1, "install failed")
	}}
	s, _ := newTestSupervisor(t, runner)
	spec := testSpec()
	spec.Peers = append(spec.Peers, PeerSpec{PublicKey: "P2", AllowedIPs: "10.8.0.3/32", Keepalive: Keepalive(0)})

	// A failed install leaves the config behind, which is when Inspect is useful.
	if err := s.Start(context.Background(), spec, "safenet"); !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected install failure, got %v", err)
	}

	sum, err := s.Inspect(context.Background(), "safenet")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !sum.HasPrivateKey || sum.Address != "10.8.0.1/24" || sum.ListenPort != 51820 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(sum.Peers) != 2 || sum.Peers[0].Endpoint != "1.2.3.4:51820" {
		t.Fatalf("unexpected peers %+v", sum.Peers)
	}
	if sum.Peers[1].Keepalive == nil || *sum.Peers[1].Keepalive != 0 {
		t.Fatalf("expected explicit zero keepalive to survive, got %+v", sum.Peers[1])
	}

	out, _ := json.Marshal(sum)
	if strings.Contains(string(out), spec.PrivateKey) {
		t.Fatalf("summary leaked private key: %s", out)
	}
}

func TestInspectMissingConfig(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeRunner{})
	if _, err := s.Inspect(context.Background(), "nothing"); !errors.Is(err, ErrNoConfig) {
		t.Fatalf("expected ErrNoConfig, got %v", err)
	}
	if _, err := s.Inspect(context.Background(), "../etc"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestParseConfigRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no interface":     "[Peer]\nPublicKey = P1\nAllowedIPs = 10.8.0.2/32\n",
		"two interfaces":   "[Interface]\nPrivateKey = K\n\n[Interface]\nPrivateKey = K\n",
		"bad port":         "[Interface]\nPrivateKey = K\nListenPort = 70000\n",
		"peer without key": "[Interface]\nPrivateKey = K\n\n[Peer]\nAllowedIPs = 10.8.0.2/32\n",
		"bad keepalive":    "[Interface]\nPrivateKey = K\n\n[Peer]\nPublicKey = P\nPersistentKeepalive = soon\n",
	}
	for name, text := range cases {
		if _, err := ParseConfig([]byte(text)); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}
