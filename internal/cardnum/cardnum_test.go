package cardnum

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	g := NewGenerator(nil)
	for i := 0; i < 50; i++ {
		n, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(n) != 16 || !IsDigits(n) {
			t.Fatalf("want 16 digits, got %q", n)
		}
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	g := NewGenerator(nil)

	n, err := g.GenerateWithPrefix("4000")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(n) != 16 || !strings.HasPrefix(n, "4000") || !IsDigits(n) {
		t.Fatalf("want 16 digits starting 4000, got %q", n)
	}

	// Empty prefix behaves like Generate.
	n, err = g.GenerateWithPrefix("")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(n) != 16 {
		t.Fatalf("want 16 digits, got %q", n)
	}

	if _, err := g.GenerateWithPrefix("12ab"); err == nil {
		t.Fatalf("expected error for non-numeric prefix")
	}
	if _, err := g.GenerateWithPrefix("1234567890123456"); err == nil {
		t.Fatalf("expected error for over-long prefix")
	}
}

func TestGenerate_DeterministicSource(t *testing.T) {
	// Bytes 0..15 all pass the rejection threshold, so digits follow mod 10.
	src := bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})
	g := NewGenerator(src)
	n, err := g.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n != "0123456789012345" {
		t.Fatalf("got %q", n)
	}
}

func TestMask(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234567890123456", "**** **** **** 3456"},
		{"9999000011112222", "**** **** **** 2222"},
		{"123", "****"},
		{"", "****"},
	}
	for _, c := range cases {
		if got := Mask(c.in); got != c.want {
			t.Fatalf("Mask(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLastFour(t *testing.T) {
	if got := LastFour("1234567890123456"); got != "3456" {
		t.Fatalf("got %q", got)
	}
	if got := LastFour("12"); got != "12" {
		t.Fatalf("got %q", got)
	}
}

func TestValid(t *testing.T) {
	if !Valid("1234567890123456") {
		t.Fatalf("16 digits must be valid")
	}
	if Valid("123456789012345") || Valid("12345678901234567") || Valid("12345678901234ab") {
		t.Fatalf("wrong length or non-digits must be invalid")
	}
}
