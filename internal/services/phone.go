package services

import (
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

const defaultCountryCode = "+52" // MX

// NormalizePhone converts a raw channel address to E.164. Channel
// prefixes like "whatsapp:" are stripped; bare 10-digit national
// numbers get the default country code. Anything else that does not
// already look like E.164 is rejected with ErrInvalidPhone before any
// state mutation.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '+':
			return r
		case r == ' ', r == '-', r == '(', r == ')':
			return -1
		default:
			return r // keep; it will fail the pattern check below
		}
	}, s)

	if !strings.HasPrefix(s, "+") {
		if len(s) == 10 {
			s = defaultCountryCode + s
		} else {
			return "", ErrInvalidPhone
		}
	}

	if !e164Pattern.MatchString(s) {
		return "", ErrInvalidPhone
	}
	return s, nil
}
