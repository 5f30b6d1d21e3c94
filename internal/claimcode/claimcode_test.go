package claimcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratorRejectsShortCodes(t *testing.T) {
	_, err := NewGenerator(MinLength - 1)
	assert.Error(t, err)
}

func TestCodesAreUnique(t *testing.T) {
	gen, err := NewGenerator(DefaultLength)
	require.NoError(t, err)

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		code, err := gen.New()
		require.NoError(t, err)
		require.Len(t, code, DefaultLength)
		require.True(t, Valid(code), "invalid code %q", code)

		_, dup := seen[code]
		require.False(t, dup, "duplicate code %q after %d codes", code, i)
		seen[code] = struct{}{}
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"abcd-efgh-jk": "ABCDEFGHJK",
		" 7xq2 m9ka0 ": "7XQ2M9KA0",
		"OIL1o0":       "011100",
	}

	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("7XQ2M9KA0Z"))
	assert.False(t, Valid("7XQ2"))
	assert.False(t, Valid("7XQ2M9KAOU"))
	assert.False(t, Valid("7xq2m9ka0z"))
}
