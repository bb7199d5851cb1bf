package utils

import "testing"

func TestRandStr(t *testing.T) {
	if RandStr(0) != "" {
		t.Fatalf("expected empty string")
	}
	s := RandStr(32)
	if len(s) != 32 {
		t.Fatalf("unexpected length %d", len(s))
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			t.Fatalf("unexpected char %q", c)
		}
	}
	if RandStr(32) == s {
		t.Fatalf("expected different strings")
	}
}

func TestTruncate(t *testing.T) {
	if got, cut := Truncate("hello", 10); got != "hello" || cut {
		t.Fatalf("unexpected %q %v", got, cut)
	}
	if got, cut := Truncate("hello", 3); got != "hel" || !cut {
		t.Fatalf("unexpected %q %v", got, cut)
	}
	// "é" is two bytes; cutting inside it backs off to the rune start
	if got, cut := Truncate("aé", 2); got != "a" || !cut {
		t.Fatalf("unexpected %q %v", got, cut)
	}
}
