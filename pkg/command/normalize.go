package command

import "regexp"

// brandPattern matches the phonetic spellings of the product name that
// speech transcription produces. The canonical replacement matches the
// pattern itself, which keeps the substitution idempotent.
var brandPattern = regexp.MustCompile(`(?i)(h\s*a\s*a\s*k\s*(?:i|e)?\s*e\s*e\s*m|ha+\s*k[iy]e?m|hakim|hakeem|haakeem|hakem|akim)`)

// NormalizeBrand collapses phonetic spellings of the brand name into the
// canonical token. It is a pure text transform: applying it to already
// normalized text is a no-op.
func NormalizeBrand(text string) string {
	return brandPattern.ReplaceAllString(text, "HAAKEEM")
}
