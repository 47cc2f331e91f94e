package scoring

import (
	"regexp"

	"github.com/memcore-dev/memcore/internal/vectormath"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\b(\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)
	ssnPattern    = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	addressPattern = regexp.MustCompile(`(?i)\b\d+\s+\w+(\s+\w+)?\s+(street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr)\b`)
	bankPattern    = regexp.MustCompile(`(?i)\b(account|routing)\s*(number|no\.?|#)?\s*:?\s*\d{6,17}\b`)
	currencyPattern = regexp.MustCompile(`[$€£]\s?\d[\d,]*(\.\d{2})?`)
)

// DetectPII returns the saturated pii_score for content per §4.1: email or
// phone markers +0.3 each, SSN or credit-card markers +0.5 each, a street
// address +0.2, and the caller's "personal" tag +0.2.
func DetectPII(content string, hasPersonalTag bool) float64 {
	var score float64
	if emailPattern.MatchString(content) {
		score += 0.3
	}
	if phonePattern.MatchString(content) {
		score += 0.3
	}
	if ssnPattern.MatchString(content) {
		score += 0.5
	}
	if cardPattern.MatchString(content) {
		score += 0.5
	}
	if addressPattern.MatchString(content) {
		score += 0.2
	}
	if hasPersonalTag {
		score += 0.2
	}
	return vectormath.Clamp(score, 0, 1)
}

// DetectFinancial returns a saturated financial_score: a credit-card-shaped
// number or explicit bank account/routing reference +0.5, a currency amount
// +0.2.
func DetectFinancial(content string) float64 {
	var score float64
	if cardPattern.MatchString(content) || bankPattern.MatchString(content) {
		score += 0.5
	}
	if currencyPattern.MatchString(content) {
		score += 0.2
	}
	return vectormath.Clamp(score, 0, 1)
}
