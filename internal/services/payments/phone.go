package payments

import (
	"errors"
	"strings"
)

// ErrInvalidMSISDN is returned when a phone number cannot be normalized
// into the rail's canonical 254XXXXXXXXX form.
var ErrInvalidMSISDN = errors.New("payments: not a valid Kenyan MSISDN")

// NormalizeMSISDN converts a user-supplied phone number into the canonical
// addressing format the STK rail expects: 254 followed by a nine-digit
// subscriber number. Accepted inputs:
//
//	0712345678   -> 254712345678
//	712345678    -> 254712345678
//	+254712345678 -> 254712345678
//	254712345678 -> 254712345678
func NormalizeMSISDN(input string) (string, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "+")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")

	if s == "" || !isDigits(s) {
		return "", ErrInvalidMSISDN
	}

	switch {
	case len(s) == 12 && strings.HasPrefix(s, "254"):
		// already canonical, validate the subscriber prefix below
	case len(s) == 10 && (strings.HasPrefix(s, "07") || strings.HasPrefix(s, "01")):
		s = "254" + s[1:]
	case len(s) == 9 && (strings.HasPrefix(s, "7") || strings.HasPrefix(s, "1")):
		s = "254" + s
	default:
		return "", ErrInvalidMSISDN
	}

	// Kenyan mobile numbers are 2547XXXXXXXX or 2541XXXXXXXX.
	if s[3] != '7' && s[3] != '1' {
		return "", ErrInvalidMSISDN
	}
	return s, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
