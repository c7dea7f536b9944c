package ingest

import "regexp"

// PII is scrubbed before any text reaches the insight store, the vector
// store, or an LLM prompt.
var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+?\d{1,2}[\s.\-]?)?(\(\d{3}\)|\d{3})[\s.\-]\d{3}[\s.\-]?\d{4}\b`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`)
)

// Redact replaces emails, phone numbers, SSNs and card-like digit runs
// with typed placeholders.
func Redact(text string) string {
	text = emailPattern.ReplaceAllString(text, "[REDACTED_EMAIL]")
	text = ssnPattern.ReplaceAllString(text, "[REDACTED_SSN]")
	text = cardPattern.ReplaceAllString(text, "[REDACTED_CARD]")
	text = phonePattern.ReplaceAllString(text, "[REDACTED_PHONE]")
	return text
}
