// Package claimcode issues pickup codes for orders.
//
// Codes use the Crockford base32 alphabet: 32 symbols without I, L, O or U,
// so a code read aloud or typed at the counter survives case changes and
// the usual look-alike confusions. Ten symbols give 2^50 possible codes.
package claimcode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	alphabet      = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	DefaultLength = 10
	MinLength     = 8
)

type Generator struct {
	length int
}

func NewGenerator(length int) (*Generator, error) {
	if length < MinLength {
		return nil, fmt.Errorf("claim code length %d below minimum %d", length, MinLength)
	}
	return &Generator{length: length}, nil
}

func (g *Generator) New() (string, error) {
	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// len(alphabet) divides 256, so masking is unbiased.
	for i, b := range buf {
		buf[i] = alphabet[b&31]
	}
	return string(buf), nil
}

var lookalikes = strings.NewReplacer("O", "0", "I", "1", "L", "1", "-", "", " ", "")

// Normalize maps user input to the canonical stored form.
func Normalize(code string) string {
	return lookalikes.Replace(strings.ToUpper(strings.TrimSpace(code)))
}

// Valid reports whether code is canonical and contains only alphabet symbols.
func Valid(code string) bool {
	if len(code) < MinLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
