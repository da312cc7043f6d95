// Package resolve normalizes submitted company names into the forms used as
// dedup keys, cache keys, and lease keys.
package resolve

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Name trims and collapses internal whitespace. Casing is preserved since the
// catalog matches names case-insensitively.
func Name(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// stripMarks removes combining marks after NFD decomposition, so "Máximo"
// keys the same as "Maximo".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CacheKey derives a filesystem/URL-safe slug from a company name. Used to
// key the context cache and the per-name processing lease.
func CacheKey(name string) string {
	folded, _, err := transform.String(stripMarks, Name(name))
	if err != nil {
		folded = Name(name)
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	lastDash := true // suppress a leading dash
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ParseList splits a comma-delimited submission into normalized, deduplicated
// company names. Dedup is case-insensitive; the first spelling wins. Returns
// an error when nothing valid remains or the batch exceeds max.
func ParseList(raw string, max int) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := Name(part)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	if len(names) == 0 {
		return nil, eris.New("resolve: no valid company names provided")
	}
	if max > 0 && len(names) > max {
		return nil, eris.Errorf("resolve: batch of %d exceeds the maximum of %d companies", len(names), max)
	}
	return names, nil
}
