package util

import (
	"fmt"
	"regexp"
	"strings"
)

var nonDialRe = regexp.MustCompile(`[^\d\+]+`)

// NormalizePhone tries to normalize user input into E.164-like format.
func NormalizePhone(raw string) string {
	s := nonDialRe.ReplaceAllString(strings.TrimSpace(raw), "")

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	} else if strings.HasPrefix(s, "0") && len(s) == 11 {
		s = "+98" + s[1:]
	} else if strings.HasPrefix(s, "9") && len(s) == 10 {
		s = "+98" + s
	} else if strings.HasPrefix(s, "98") {
		s = "+" + s
	}

	return s
}

var e164Re = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// FormatRecipient normalizes a recipient number and rejects anything that is
// not a plausible E.164 number after normalization.
func FormatRecipient(raw string) (string, error) {
	s := NormalizePhone(raw)
	if !e164Re.MatchString(s) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return s, nil
}
