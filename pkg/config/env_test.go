package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("SAFENET_FOO", "")
	if got := GetEnv("SAFENET_FOO", "bar"); got != "bar" {
		t.Fatalf("expected bar, got %s", got)
	}
	t.Setenv("SAFENET_FOO", "baz")
	if got := GetEnv("SAFENET_FOO", "bar"); got != "baz" {
		t.Fatalf("expected baz, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("NUM", "")
	if got := GetEnvInt("NUM", 42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("NUM", "100")
	if got := GetEnvInt("NUM", 42); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	t.Setenv("NUM", "notint")
	if got := GetEnvInt("NUM", 7); got != 7 {
		t.Fatalf("expected 7 on parse error, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "")
	if got := GetEnvBool("FLAG", true); got != true {
		t.Fatalf("expected true default, got %v", got)
	}
	t.Setenv("FLAG", "false")
	if got := GetEnvBool("FLAG", true); got != false {
		t.Fatalf("expected false, got %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("SAFENET_RETENTION", "")
	if got := GetEnvDuration("SAFENET_RETENTION", time.Hour); got != time.Hour {
		t.Fatalf("expected default 1h, got %s", got)
	}
	t.Setenv("SAFENET_RETENTION", "90s")
	if got := GetEnvDuration("SAFENET_RETENTION", time.Hour); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	t.Setenv("SAFENET_RETENTION", "30")
	if got := GetEnvDuration("SAFENET_RETENTION", time.Hour); got != 30*time.Second {
		t.Fatalf("expected bare integer as seconds, got %s", got)
	}
	t.Setenv("SAFENET_RETENTION", "soon")
	if got := GetEnvDuration("SAFENET_RETENTION", time.Minute); got != time.Minute {
		t.Fatalf("expected default on parse error, got %s", got)
	}
}

func TestGetEnvUint16(t *testing.T) {
	t.Setenv("SAFENET_SERVER_LISTEN_PORT", "")
	if got := GetEnvUint16("SAFENET_SERVER_LISTEN_PORT", 51820); got != 51820 {
		t.Fatalf("expected default, got %d", got)
	}
	t.Setenv("SAFENET_SERVER_LISTEN_PORT", "51900")
	if got := GetEnvUint16("SAFENET_SERVER_LISTEN_PORT", 51820); got != 51900 {
		t.Fatalf("expected 51900, got %d", got)
	}
	for _, bad := range []string{"70000", "-1", "port"} {
		t.Setenv("SAFENET_SERVER_LISTEN_PORT", bad)
		if got := GetEnvUint16("SAFENET_SERVER_LISTEN_PORT", 51820); got != 51820 {
			t.Fatalf("%q: expected default, got %d", bad, got)
		}
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("SAFENET_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "debug")
	if GetLogLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level")
	}
	t.Setenv("LOG_LEVEL", "warn")
	if GetLogLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level")
	}
	t.Setenv("SAFENET_LOG_LEVEL", "error")
	if GetLogLevel() != logrus.ErrorLevel {
		t.Fatalf("SAFENET_LOG_LEVEL should win over LOG_LEVEL")
	}
	t.Setenv("SAFENET_LOG_LEVEL", "loud")
	if GetLogLevel() != logrus.InfoLevel {
		t.Fatalf("expected info for unknown level")
	}
	t.Setenv("SAFENET_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "")
	if GetLogLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level by default")
	}
}

func TestLoadEnvOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "safenet.env"), []byte("SAFENET_TUNNEL_NAME=office\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SAFENET_TUNNEL_NAME", "safenet")
	LoadEnv(logrus.New())
	if got := GetEnv("SAFENET_TUNNEL_NAME", ""); got != "office" {
		t.Fatalf("expected env file to override, got %q", got)
	}
}

func TestLoadEnv_NoFile(t *testing.T) {
	chdir(t, t.TempDir())
	LoadEnv(logrus.New())
	LoadEnv(nil)
}
