package generate

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/systmms/credkeeper/internal/policy"
	"github.com/systmms/credkeeper/internal/strength"
)

const (
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars = "0123456789"

	// mediumSpecial is the reduced symbol set for medium-complexity
	// types, where the consumer may not tolerate the full set.
	mediumSpecial = "!@#$%^&*"

	// extraSpecial extends the very-high alphabet beyond the scored
	// special set.
	extraSpecial = `"'\`
)

// maxAttempts bounds the resample loop. A fresh random draw almost never
// trips the anti-pattern rules, so this is never reached in practice.
const maxAttempts = 10

// Candidate produces a cryptographically random secret that satisfies the
// policy's length and complexity class. The draw is resampled if it
// happens to contain a sequential or repeated run, so an accepted policy
// always yields a candidate its own validator will pass.
func Candidate(p policy.CredentialPolicy) (string, error) {
	length := p.MinLength
	if length <= 0 {
		return "", fmt.Errorf("policy %s has no usable min_length", p.TypeID)
	}

	if p.Complexity == policy.ComplexityNone {
		return randomString(lowerChars+upperChars+digitChars, length)
	}

	required := requiredSets(p.Complexity)
	alphabet := ""
	for _, set := range required {
		alphabet += set
	}
	if p.Complexity == policy.ComplexityVeryHigh {
		alphabet += extraSpecial
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := compose(required, alphabet, length)
		if err != nil {
			return "", err
		}
		if result := strength.Score(candidate, p); result.Valid {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not generate a valid candidate for %s after %d attempts", p.TypeID, maxAttempts)
}

// requiredSets returns one character set per composition class the
// validator requires, keyed by complexity.
func requiredSets(c policy.ComplexityClass) []string {
	special := strength.SpecialChars
	if c == policy.ComplexityMedium {
		special = mediumSpecial
	}
	return []string{lowerChars, upperChars, digitChars, special}
}

// compose draws one character from each required set, fills the remainder
// from the full alphabet, and shuffles the result.
func compose(required []string, alphabet string, length int) (string, error) {
	if length < len(required) {
		length = len(required)
	}

	out := make([]byte, 0, length)
	for _, set := range required {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates with crypto/rand so the class-guaranteed characters
	// are not predictably positioned.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("failed to shuffle candidate: %w", err)
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return set[n.Int64()], nil
}

func randomString(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		c, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	return string(out), nil
}
