package util

import (
	"regexp"
	"strings"
)

// CNJFieldKey is the Ploomes custom field holding the case number of a deal.
const CNJFieldKey = "deal_20E8290A-809B-4CF1-9345-6B264AED7830"

var (
	reNonDigits = regexp.MustCompile(`\D`)
	reCNJTitle  = regexp.MustCompile(`\b\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}\b`)
)

func Digits(input string) string {
	return reNonDigits.ReplaceAllString(input, "")
}

// NormalizeCNJ formats a case number as NNNNNNN-DD.AAAA.J.TR.OOOO. Inputs
// that do not carry exactly 20 digits are rejected.
func NormalizeCNJ(input string) (string, bool) {
	d := Digits(input)
	if len(d) != 20 {
		return "", false
	}
	return d[:7] + "-" + d[7:9] + "." + d[9:13] + "." + d[13:14] + "." + d[14:16] + "." + d[16:], true
}

// CanonicalCNJ is the comparison key for case numbers: the normalized form
// when valid, otherwise the trimmed input so that malformed identifiers
// still compare equal to themselves.
func CanonicalCNJ(input string) string {
	if cnj, ok := NormalizeCNJ(input); ok {
		return cnj
	}
	return strings.TrimSpace(input)
}

// FindCNJ returns the first punctuated case number embedded in free text.
func FindCNJ(text string) string {
	return reCNJTitle.FindString(text)
}
