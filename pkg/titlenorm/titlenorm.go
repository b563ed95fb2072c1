// Package titlenorm canonicalizes human-entered task titles into comparison keys.
//
// Two titles identify the same task when their normalized forms are equal and
// they live in the same scope (same remote list for top-level tasks, same parent
// for sub-tasks). Scope is the caller's business; this package only produces keys.
package titlenorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leadingPrefixes matches one or more "[...]" groups at the start of a title.
var leadingPrefixes = regexp.MustCompile(`^\s*(\[[^\]]*\]\s*)+`)

// Normalize returns the comparison key for a raw title: leading bracketed
// prefixes removed, diacritics stripped, whitespace collapsed, lowercased.
// It never fails; an empty or blank title yields "".
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := StripPrefixes(raw)
	s = stripDiacritics(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// StripPrefixes removes leading bracketed prefixes ("[Project] [Sub] Text" -> "Text")
// and surrounding whitespace, leaving case and accents untouched.
func StripPrefixes(raw string) string {
	return strings.TrimSpace(leadingPrefixes.ReplaceAllString(raw, ""))
}

// Equal reports whether two raw titles normalize to the same key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// ScopedKey joins a scope identifier and the normalized title into a single map key.
func ScopedKey(scope, raw string) string {
	return scope + "\x00" + Normalize(raw)
}

func stripDiacritics(s string) string {
	// transform.Chain keeps state, so build a fresh one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
