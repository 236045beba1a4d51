package xexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const helperEnv = "SAFENET_WANT_HELPER_PROCESS=1"

// TestHelperProcess is re-executed as the child process by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("SAFENET_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "no helper command")
		os.Exit(2)
	}
	cmd, rest := args[1], args[2:]
	switch cmd {
	case "echo-argv":
		_ = json.NewEncoder(os.Stdout).Encode(rest)
		os.Exit(0)
	case "getenv":
		for _, key := range rest {
			fmt.Fprintln(os.Stdout, key+"="+os.Getenv(key))
		}
		os.Exit(0)
	case "fail":
		fmt.Fprint(os.Stderr, "The specified service does not exist as an installed service.")
		os.Exit(1060)
	case "bad-bytes":
		_, _ = os.Stdout.Write([]byte{'o', 'k', 0xff, 0xfe, '\n'})
		_, _ = os.Stderr.Write([]byte{0xc3, 0x28})
		os.Exit(0)
	case "oem":
		// "État" in code page 850
		_, _ = os.Stdout.Write([]byte{0x90, 't', 'a', 't'})
		os.Exit(0)
	case "sleep":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	}
	os.Exit(2)
}

func helperArgv(args ...string) []string {
	return append([]string{os.Args[0], "-test.run=TestHelperProcess", "--"}, args...)
}

func newHelperDriver(opts ...Option) *Driver {
	return New(append([]Option{WithEnv(helperEnv), WithWaitDelay(time.Second)}, opts...)...)
}

func TestRunPassesMetacharactersAsSingleArguments(t *testing.T) {
	d := newHelperDriver()
	hostile := []string{
		"ghost; rm -rf /",
		"name && calc.exe",
		"$(whoami)",
		"`id`",
		"a | b > c",
		`C:\Program Files\WireGuard\x".conf`,
	}

	res, err := d.Run(context.Background(), helperArgv(append([]string{"echo-argv"}, hostile...)...))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var got []string
	if err := json.Unmarshal([]byte(res.Stdout), &got); err != nil {
		t.Fatalf("decode helper output %q: %v", res.Stdout, err)
	}
	if len(got) != len(hostile) {
		t.Fatalf("expected %d arguments, got %d: %q", len(hostile), len(got), got)
	}
	for i := range hostile {
		if got[i] != hostile[i] {
			t.Fatalf("argument %d altered: want %q, got %q", i, hostile[i], got[i])
		}
	}
}

func TestWithEnvAccumulates(t *testing.T) {
	d := newHelperDriver(WithEnv("SAFENET_TEST_A=1"), WithEnv("SAFENET_TEST_B=2"))
	res, err := d.Run(context.Background(), helperArgv("getenv", "SAFENET_TEST_A", "SAFENET_TEST_B"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := "SAFENET_TEST_A=1\nSAFENET_TEST_B=2\n"
	if res.Stdout != want {
		t.Fatalf("expected both pairs in the child environment, got %q", res.Stdout)
	}
}

func TestRunNonZeroExitCarriesStderr(t *testing.T) {
	d := newHelperDriver()
	res, err := d.Run(context.Background(), helperArgv("fail"))

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T %v", err, err)
	}
	if exitErr.Code == 0 || res.ExitCode != exitErr.Code {
		t.Fatalf("expected non-zero exit code in both result and error, got %d/%d", res.ExitCode, exitErr.Code)
	}
	if !strings.Contains(exitErr.Stderr, "does not exist") || !strings.Contains(res.Stderr, "does not exist") {
		t.Fatalf("expected stderr to be captured, got %q", exitErr.Stderr)
	}
	if IsNotFound(err) {
		t.Fatal("exit failure must not be classified as not-found")
	}
}

func TestRunMissingExecutable(t *testing.T) {
	d := New()
	_, err := d.Run(context.Background(), []string{"safenet-no-such-control-exe", "/installtunnelservice", "x.conf"})

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Executable != "safenet-no-such-control-exe" {
		t.Fatalf("expected *NotFoundError naming the executable, got %#v", err)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Fatal("not-found must not look like an exit failure")
	}
}

func TestRunEmptyArgv(t *testing.T) {
	if _, err := New().Run(context.Background(), nil); !errors.Is(err, ErrEmptyArgv) {
		t.Fatalf("expected ErrEmptyArgv, got %v", err)
	}
}

func TestRunDecodesPermissively(t *testing.T) {
	d := newHelperDriver()
	res, err := d.Run(context.Background(), helperArgv("bad-bytes"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !utf8.ValidString(res.Stdout) || !utf8.ValidString(res.Stderr) {
		t.Fatalf("expected valid UTF-8, got %q / %q", res.Stdout, res.Stderr)
	}
	if !strings.HasPrefix(res.Stdout, "ok") {
		t.Fatalf("expected decodable prefix to survive, got %q", res.Stdout)
	}
}

func TestRunWithCodePage(t *testing.T) {
	d := newHelperDriver(WithEncoding(charmap.CodePage850))
	res, err := d.Run(context.Background(), helperArgv("oem"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Stdout != "État" {
		t.Fatalf("expected code page 850 decoding, got %q", res.Stdout)
	}
}

func TestRunCancellation(t *testing.T) {
	d := newHelperDriver()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := d.Run(ctx, helperArgv("sleep"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("cancelled run did not return promptly")
	}
}

func TestRunAlreadyCancelledDoesNotStartProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Run(ctx, []string{"safenet-no-such-control-exe"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled before lookup, got %v", err)
	}
}

func TestRunConcurrentInvocationsDoNotSerialize(t *testing.T) {
	d := newHelperDriver()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A long-running call must not block a short one.
	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = d.Run(ctx, helperArgv("sleep"))
	}()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Run(context.Background(), helperArgv("echo-argv", fmt.Sprintf("tunnel-%d", i)))
			errs <- err
		}(i)
	}

	finished := make(chan struct{})
	go func() { wg.Wait(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(20 * time.Second):
		t.Fatal("short runs blocked behind the long-running one")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	cancel()
	<-slowDone
}

func TestEncodingFor(t *testing.T) {
	for _, name := range []string{"", "utf-8", "437", "850", "cp1252"} {
		if _, err := EncodingFor(name); err != nil {
			t.Fatalf("%q: unexpected error %v", name, err)
		}
	}
	if _, err := EncodingFor("ebcdic"); err == nil {
		t.Fatal("expected unsupported code page error")
	}
}

func TestRunnerFunc(t *testing.T) {
	var seen []string
	r := RunnerFunc(func(_ context.Context, argv []string) (Result, error) {
		seen = argv
		return Result{Stdout: "ok"}, nil
	})
	res, err := r.Run(context.Background(), []string{"sc.exe", "query", "WireGuardTunnel$x"})
	if err != nil || res.Stdout != "ok" || len(seen) != 3 {
		t.Fatalf("unexpected adapter behaviour: %v %+v %v", err, res, seen)
	}
}
