package util

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	e164Regex      = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	nonDigitOrPlus = regexp.MustCompile(`[^\d+]`)
)

// IsE164 reports basic E.164 compliance.
func IsE164(number string) bool { return e164Regex.MatchString(number) }

// NormalizePhone canonicalizes a phone number to E.164. Bare ten-digit numbers and
// eleven-digit numbers with a leading 1 are treated as North American.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("phone number is empty")
	}
	s = nonDigitOrPlus.ReplaceAllString(s, "")
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		switch {
		case len(s) == 10:
			s = "+1" + s
		case len(s) == 11 && s[0] == '1':
			s = "+" + s
		default:
			s = "+" + s
		}
	}
	if strings.Count(s, "+") != 1 || !IsE164(s) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return s, nil
}
