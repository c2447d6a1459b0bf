// Package cardnum generates and masks 16-digit card numbers.
package cardnum

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const numberLen = 16

// Generator produces card numbers from an injected random source. The
// source must be cryptographically secure in production; tests may pass a
// deterministic reader.
type Generator struct {
	src io.Reader
}

// NewGenerator returns a Generator reading randomness from src. If src is
// nil, crypto/rand is used.
func NewGenerator(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}
	return &Generator{src: src}
}

// Generate returns a 16-digit numeric string. No uniqueness guarantee is
// made here; callers that need uniqueness must check against their store.
func (g *Generator) Generate() (string, error) {
	return g.randomDigits(numberLen)
}

// GenerateWithPrefix returns a 16-digit numeric string starting with
// prefix. An empty prefix is equivalent to Generate.
func (g *Generator) GenerateWithPrefix(prefix string) (string, error) {
	if prefix == "" {
		return g.Generate()
	}
	if !IsDigits(prefix) {
		return "", fmt.Errorf("prefix must contain digits only")
	}
	if len(prefix) >= numberLen {
		return "", fmt.Errorf("prefix too long: %d digits", len(prefix))
	}
	rest, err := g.randomDigits(numberLen - len(prefix))
	if err != nil {
		return "", err
	}
	return prefix + rest, nil
}

// randomDigits produces count uniform digits using rejection sampling:
// only bytes below 250 are accepted before reduction mod 10, so 0-9 stay
// equally likely.
func (g *Generator) randomDigits(count int) (string, error) {
	const threshold = 250 // 256 - (256 % 10)
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 32)
	for sb.Len() < count {
		n, err := g.src.Read(buf)
		if err != nil {
			return "", fmt.Errorf("rand: %w", err)
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			if buf[i] < threshold {
				sb.WriteByte('0' + buf[i]%10)
			}
		}
	}
	return sb.String(), nil
}

// Mask returns the display form of a card number: "**** **** **** 1234".
// Numbers shorter than four digits mask to "****".
func Mask(number string) string {
	if len(number) < 4 {
		return "****"
	}
	return "**** **** **** " + number[len(number)-4:]
}

// LastFour returns the trailing four digits of a card number.
func LastFour(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Valid reports whether s is a well-formed 16-digit card number.
func Valid(s string) bool {
	return len(s) == numberLen && IsDigits(s)
}
