package identity_test

import (
	"testing"

	"github.com/euem/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroReader always yields zero bytes, pinning the generator output
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestCodeGeneratorLength(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{name: "Six digits", length: 6, want: 6},
		{name: "Four digits", length: 4, want: 4},
		{name: "Eight digits", length: 8, want: 8},
		{name: "Zero falls back to default", length: 0, want: identity.DefaultOTPLength},
		{name: "Negative falls back to default", length: -3, want: identity.DefaultOTPLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := identity.NewCodeGenerator(tt.length)
			assert.Equal(t, tt.want, g.Length())

			code, err := g.Generate()
			require.NoError(t, err)
			assert.Len(t, code, tt.want)

			for _, r := range code {
				assert.True(t, r >= '0' && r <= '9', "code %q contains non digit %q", code, r)
			}
		})
	}
}

func TestCodeGeneratorPreservesLeadingZeros(t *testing.T) {
	g := identity.NewCodeGenerator(6, identity.WithCodeSource(zeroReader{}))

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "000000", code)
}

func TestCodeGeneratorDrawsFreshCodes(t *testing.T) {
	g := identity.NewCodeGenerator(8)

	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		seen[code] = true
	}

	// 32 draws from 10^8 repeating would mean a broken entropy source
	assert.Greater(t, len(seen), 30)
}
