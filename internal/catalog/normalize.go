// Package catalog implements product identity rules for pharmacy inventory.
// Purchase and sale documents name the same product with inconsistent
// spelling, casing, and fraction markers; the cleaned name is the only
// join key across documents. CABYS codes are display metadata, never
// identity.
package catalog

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	fracPrefix   = regexp.MustCompile(`^FRAC\.\s*`)
	trailingJunk = regexp.MustCompile(`[*+\-#@!]+$`)
	disallowed   = regexp.MustCompile(`[^\p{L}\p{N}_\s./()]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// CleanProductName canonicalizes a raw product description into the
// product key. The sequence is fixed: NFC normalization, uppercase, trim,
// FRAC. prefix removal, trailing marker removal, replacement of characters
// outside letters/digits/underscore/space/"./()" with spaces, and
// whitespace collapse. Returns "" when nothing survives.
func CleanProductName(raw string) string {
	name := norm.NFC.String(raw)
	name = strings.ToUpper(name)
	name = strings.TrimSpace(name)
	name = fracPrefix.ReplaceAllString(name, "")
	name = trailingJunk.ReplaceAllString(name, "")
	name = disallowed.ReplaceAllString(name, " ")
	name = whitespace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// NormalizeQuantity converts a document quantity into selling units by
// dividing out the fraction factor (blister/box subdivision). Factors
// below 1 are treated as 1.
func NormalizeQuantity(qty, fractionFactor float64) float64 {
	if fractionFactor < 1 {
		fractionFactor = 1
	}
	return qty / fractionFactor
}
