package instance

import (
	"errors"
	"testing"
)

func TestResolveOrder(t *testing.T) {
	host := func() (string, error) { return "pod-7", nil }
	noHost := func() (string, error) { return "", errors.New("no hostname") }

	t.Setenv("WORKER_ID", "")
	t.Setenv("K_REVISION", "")
	if got := resolve(host); got != "pod-7" {
		t.Fatalf("expected hostname, got %q", got)
	}
	if got := resolve(noHost); got != fallbackID {
		t.Fatalf("expected fallback, got %q", got)
	}

	t.Setenv("K_REVISION", "spoolhub-api-00042")
	if got := resolve(host); got != "spoolhub-api-00042/pod-7" {
		t.Fatalf("expected revision/host, got %q", got)
	}

	t.Setenv("WORKER_ID", "worker-3")
	if got := resolve(host); got != "worker-3" {
		t.Fatalf("expected explicit worker id, got %q", got)
	}
}
