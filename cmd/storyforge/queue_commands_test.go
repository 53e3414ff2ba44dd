package main

import "testing"

func TestParsePositiveIDs(t *testing.T) {
	ids, err := parsePositiveIDs([]string{"1", " 42 ", "7"})
	if err != nil {
		t.Fatalf("parsePositiveIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 42 || ids[2] != 7 {
		t.Fatalf("ids = %v", ids)
	}

	for _, bad := range []string{"0", "-3", "abc", ""} {
		if _, err := parsePositiveIDs([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"pending":    "Pending",
		"compositing": "Compositing",
		"":           "",
		"  failed ":  "Failed",
	}
	for input, want := range cases {
		if got := formatStatusLabel(input); got != want {
			t.Errorf("formatStatusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("a very long prompt about lighthouses", 12); got != "a very lo..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 3); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
