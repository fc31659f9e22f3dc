package identity

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/goliatone/go-errors"
)

// DefaultOTPLength is the number of digits in a generated code
const DefaultOTPLength = 6

// CodeGenerator produces fixed-length numeric one-time codes. The zero
// value is not usable; construct with NewCodeGenerator. Codes are drawn
// uniformly from [0, 10^length) so leading zeros are as likely as any other
// digit. Collisions across accounts are tolerated; a code is only matched
// together with its purpose (and owner, where the flow provides one).
type CodeGenerator struct {
	length int
	source io.Reader
}

// CodeGeneratorOption configures a CodeGenerator
type CodeGeneratorOption func(*CodeGenerator)

// WithCodeSource replaces the entropy source. Tests inject a deterministic
// reader; production keeps crypto/rand.
func WithCodeSource(r io.Reader) CodeGeneratorOption {
	return func(g *CodeGenerator) {
		if r != nil {
			g.source = r
		}
	}
}

// NewCodeGenerator returns a generator for codes of the given digit length
func NewCodeGenerator(length int, opts ...CodeGeneratorOption) *CodeGenerator {
	if length <= 0 {
		length = DefaultOTPLength
	}

	g := &CodeGenerator{
		length: length,
		source: rand.Reader,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Length returns the configured digit count
func (g *CodeGenerator) Length() int {
	return g.length
}

// Generate draws one code
func (g *CodeGenerator) Generate() (string, error) {
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.length)), nil)

	n, err := rand.Int(g.source, bound)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to draw verification code")
	}

	return fmt.Sprintf("%0*d", g.length, n), nil
}
