package lifecycle

import (
	"testing"
)

func TestAcquireThenReacquireFails(t *testing.T) {
	dir := t.TempDir()

	lock, info, err := Acquire(dir, "consultd", 3456)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Close()

	if info.PID == 0 {
		t.Fatal("expected non-zero pid in lock info")
	}
	if len(info.Token) != 64 {
		t.Fatalf("expected 64 hex char token, got %d chars", len(info.Token))
	}

	if _, _, err := Acquire(dir, "consultd", 3456); err == nil {
		t.Fatal("expected second acquire to fail while first lock is held")
	}
}

func TestAcquireAfterCloseSucceeds(t *testing.T) {
	dir := t.TempDir()

	lock, _, err := Acquire(dir, "consultd", 3456)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lock2, _, err := Acquire(dir, "consultd", 3457)
	if err != nil {
		t.Fatalf("Acquire after close: %v", err)
	}
	defer lock2.Close()
}

func TestContainsSubstring(t *testing.T) {
	cases := []struct {
		s, sub string
		want   bool
	}{
		{"/usr/local/bin/consultd", "consultd", true},
		{"/usr/local/bin/other", "consultd", false},
		{"consultd", "", true},
	}
	for _, c := range cases {
		if got := containsSubstring(c.s, c.sub); got != c.want {
			t.Errorf("containsSubstring(%q, %q) = %v, want %v", c.s, c.sub, got, c.want)
		}
	}
}
