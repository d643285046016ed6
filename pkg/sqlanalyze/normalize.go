package sqlanalyze

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	numberRe     = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	stringRe     = regexp.MustCompile(`'[^']*'`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

const patternMaxLen = 100

// Normalize reduces a query to its structural pattern: literal numbers
// become N, string literals become 'S', whitespace collapses to single
// spaces, and the result is truncated to 100 characters. Queries differing
// only in literal values normalize to the same pattern.
func Normalize(query string) string {
	p := stringRe.ReplaceAllString(query, "'S'")
	p = numberRe.ReplaceAllString(p, "N")
	p = whitespaceRe.ReplaceAllString(strings.TrimSpace(p), " ")
	if len(p) > patternMaxLen {
		p = p[:patternMaxLen]
	}
	return p
}

// PatternHash fingerprints a query for frequency tracking: MD5 of the
// uppercased, whitespace-collapsed text.
func PatternHash(query string) string {
	canonical := whitespaceRe.ReplaceAllString(strings.TrimSpace(strings.ToUpper(query)), " ")
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
