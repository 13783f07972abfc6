package netio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolve_UnsupportedRecordType(t *testing.T) {
	_, err := Resolve("example.com", "BOGUS")
	if err == nil || !strings.Contains(err.Error(), "unsupported DNS record type") {
		t.Fatalf("err = %v, want unsupported record type", err)
	}
}

func TestResolve_NoNameserversConfigured(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	if err := os.WriteFile(path, []byte("search example.test\n"), 0o644); err != nil {
		t.Fatalf("writing resolv.conf: %v", err)
	}

	old := resolvConf
	resolvConf = path
	defer func() { resolvConf = old }()

	_, err := Resolve("example.com", "A")
	if err == nil {
		t.Fatal("expected an error with an empty server list")
	}
	if !strings.Contains(err.Error(), "no nameservers configured") {
		t.Errorf("err = %q, want a no-nameservers message", err)
	}
	if strings.Contains(err.Error(), "%!w") {
		t.Errorf("err = %q, wraps a nil error", err)
	}
}
