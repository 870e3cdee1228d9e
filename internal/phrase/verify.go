// Package phrase scores a transcript against a challenge phrase.
package phrase

import (
	"strings"
	"unicode"
)

// DefaultThreshold is the minimum similarity accepted as a spoken match.
const DefaultThreshold = 0.8

type Result struct {
	Score float64
	Match bool
}

type Verifier struct {
	threshold float64
}

func NewVerifier(threshold float64) *Verifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Verifier{threshold: threshold}
}

func (v *Verifier) Threshold() float64 { return v.threshold }

// Verify compares the normalized transcript with the normalized expected
// text. An empty transcript never matches.
func (v *Verifier) Verify(transcript, expected string) Result {
	t := Normalize(transcript)
	if t == "" {
		return Result{}
	}
	score := Ratio(t, Normalize(expected))
	return Result{Score: score, Match: score >= v.threshold}
}

// Normalize lowercases s, drops everything but letters, digits, underscores
// and whitespace, then collapses whitespace runs to single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_':
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Ratio is the normalized Indel similarity of a and b over runes:
// 2*LCS(a, b) / (len(a) + len(b)). Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(lcs(ra, rb)) / float64(total)
}

func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
