package storage

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
)

var objectNameRe = regexp.MustCompile(`^bulk/2026/03/[0-9a-f]{16}-[0-9a-f-]{36}\.jpg$`)

func TestObjectName(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := ObjectName(now, []byte("spool"), ".JPEG")
	b := ObjectName(now, []byte("spool"), "jpg")

	if !objectNameRe.MatchString(a) {
		t.Fatalf("unexpected object name %q", a)
	}
	if a == b {
		t.Fatal("names must be unique even for identical bytes")
	}
	if a[:len("bulk/2026/03/")+16] != b[:len("bulk/2026/03/")+16] {
		t.Fatalf("identical bytes should share the digest prefix: %q vs %q", a, b)
	}
}

func TestNormalizeExt(t *testing.T) {
	cases := map[string]string{"": "bin", ".PNG": "png", "jpeg": "jpg", " webp ": "webp"}
	for in, want := range cases {
		if got := NormalizeExt(in); got != want {
			t.Fatalf("NormalizeExt(%q) = %q want %q", in, got, want)
		}
	}
}

func TestErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := &Error{Op: "save", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected error to unwrap to cause")
	}
	if !strings.Contains(err.Error(), "save") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
