package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	reEmail       = regexp.MustCompile(`^[\w\.-]+@[\w\.-]+\.[a-zA-Z]{2,}$`)
	reUnsafeName  = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	validProducts = []string{"Integral", "Honorários", "Reclamante"}
)

// NormalizePhone formats Brazilian numbers as (DD) NNNNN-NNNN or
// (DD) NNNN-NNNN, dropping a leading 55 country code.
func NormalizePhone(input string) (string, bool) {
	d := Digits(input)
	if strings.HasPrefix(d, "55") && len(d) > 11 {
		d = d[2:]
	}
	switch len(d) {
	case 11:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:], true
	case 10:
		return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:], true
	default:
		return "", false
	}
}

// NormalizeEmail lowercases a valid address and returns "" for anything that
// does not look like one.
func NormalizeEmail(input string) string {
	email := strings.ToLower(strings.TrimSpace(input))
	if email == "" || !reEmail.MatchString(email) {
		return ""
	}
	return email
}

func NormalizeProduct(input, fallback string) string {
	p := strings.TrimSpace(input)
	if p == "" || strings.EqualFold(p, "completa") {
		return fallback
	}
	for _, v := range validProducts {
		if FoldKey(p) == FoldKey(v) {
			return v
		}
	}
	return fallback
}

func ExtractFirstValue(input, sep string) string {
	if sep == "" {
		sep = ";"
	}
	for _, part := range strings.Split(input, sep) {
		if part = strings.TrimSpace(part); part != "" {
			return part
		}
	}
	return ""
}

// FoldKey is the case-insensitive comparison form of a name.
func FoldKey(input string) string {
	return cases.Fold().String(input)
}

// SanitizeName keeps only ASCII letters, digits, spaces, hyphens and
// underscores.
func SanitizeName(input string) string {
	return strings.TrimSpace(reUnsafeName.ReplaceAllString(input, ""))
}
