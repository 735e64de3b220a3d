package strength

import (
	"fmt"
	"strings"

	"github.com/systmms/credkeeper/internal/policy"
)

// SpecialChars is the character set that satisfies the special-character
// composition rule. Generated candidates draw their symbols from it.
const SpecialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?/~`"

// weakSubstrings are scored against the lowercased candidate; each match
// marks the candidate invalid and costs twenty points.
var weakSubstrings = []string{
	"password",
	"123456",
	"qwerty",
	"admin",
	"welcome",
	"letmein",
}

// Result holds the outcome of scoring one candidate secret. Valid is
// independent of the final numeric score: a candidate can clamp to a
// positive score and still be invalid.
type Result struct {
	Valid  bool     `json:"valid"`
	Score  int      `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// Score rates a candidate secret from 0 to 100 against the composition and
// anti-pattern rules for the given policy. Types with complexity class
// "none" (short-lived session tokens) are exempt and always pass.
func Score(candidate string, p policy.CredentialPolicy) Result {
	if p.Complexity == policy.ComplexityNone {
		return Result{Valid: true, Score: 100}
	}

	result := Result{Valid: true}
	score := 0

	if len(candidate) < p.MinLength {
		result.Valid = false
		result.Issues = append(result.Issues, fmt.Sprintf("length should be at least %d characters", p.MinLength))
	} else {
		score += 25
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, c := range candidate {
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= '0' && c <= '9':
			hasDigit = true
		case strings.ContainsRune(SpecialChars, c):
			hasSpecial = true
		}
	}

	if hasUpper {
		score += 15
	} else {
		result.Valid = false
		result.Issues = append(result.Issues, "should contain at least one uppercase letter")
	}
	if hasLower {
		score += 15
	} else {
		result.Valid = false
		result.Issues = append(result.Issues, "should contain at least one lowercase letter")
	}
	if hasDigit {
		score += 20
	} else {
		result.Valid = false
		result.Issues = append(result.Issues, "should contain at least one digit")
	}
	if hasSpecial {
		score += 25
	} else {
		result.Valid = false
		result.Issues = append(result.Issues, "should contain at least one special character")
	}

	lower := strings.ToLower(candidate)
	for _, weak := range weakSubstrings {
		if strings.Contains(lower, weak) {
			result.Valid = false
			result.Issues = append(result.Issues, fmt.Sprintf("contains common pattern: %s", weak))
			score -= 20
		}
	}

	if hasSequentialRun(lower) {
		result.Valid = false
		result.Issues = append(result.Issues, "contains sequential characters")
		score -= 10
	}

	if hasRepeatedRun(candidate) {
		result.Valid = false
		result.Issues = append(result.Issues, "contains repeated characters")
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	result.Score = score
	return result
}

// hasSequentialRun reports whether s contains three or more consecutive
// ascending letters or digits ("abc", "789"). s must already be lowercased.
func hasSequentialRun(s string) bool {
	runs := 1
	for i := 1; i < len(s); i++ {
		prev, cur := s[i-1], s[i]
		ascending := cur == prev+1 &&
			((prev >= 'a' && cur <= 'z') || (prev >= '0' && cur <= '9'))
		if ascending {
			runs++
			if runs >= 3 {
				return true
			}
		} else {
			runs = 1
		}
	}
	return false
}

// hasRepeatedRun reports whether any character repeats three or more times
// consecutively.
func hasRepeatedRun(s string) bool {
	runs := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			runs++
			if runs >= 3 {
				return true
			}
		} else {
			runs = 1
		}
	}
	return false
}
