// Package iban validates Swiss IBANs (ISO 7064 mod-97) and exposes the
// masked forms used on payment instructions.
package iban

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quartiermarkt/billing/internal/domain"
)

const swissIBANLength = 21

// Normalize strips all whitespace and upper-cases the input. It does not
// validate anything.
func Normalize(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

// Validate checks a Swiss IBAN: exactly 21 characters, CH prefix, mod-97
// checksum remainder 1. Non-Swiss IBANs are rejected on purpose; the
// marketplace only pays out to Swiss accounts.
func Validate(raw string) error {
	s := Normalize(raw)
	if s == "" {
		return fmt.Errorf("Validate: %w", domain.ErrIBANEmpty)
	}
	if len(s) != swissIBANLength {
		return fmt.Errorf("Validate: got %d characters: %w", len(s), domain.ErrIBANLength)
	}
	if !strings.HasPrefix(s, "CH") {
		return fmt.Errorf("Validate: %w", domain.ErrIBANCountry)
	}

	// The check moves the country code and check digits to the end before
	// the mod-97 pass.
	rem, err := Mod97(s[4:] + s[:4])
	if err != nil {
		return fmt.Errorf("Validate: %w", err)
	}
	if rem != 1 {
		return fmt.Errorf("Validate: %w", domain.ErrIBANChecksum)
	}
	return nil
}

// Last4 returns the trailing four characters of the IBAN for display. Empty
// when the input is shorter than four characters.
func Last4(raw string) string {
	s := Normalize(raw)
	if len(s) < 4 {
		return ""
	}
	return s[len(s)-4:]
}

// Mask renders the IBAN with everything but the last four characters hidden.
func Mask(raw string) string {
	last4 := Last4(raw)
	if last4 == "" {
		return ""
	}
	return "•••• " + last4
}

// Mod97 computes the ISO 7064 remainder of an alphanumeric string, mapping
// letters to their numeric values (A=10 .. Z=35). The digit string is reduced
// incrementally so the intermediate value never exceeds what fits in an int:
// whenever the remainder buffer reaches nine digits it is collapsed back to
// its value mod 97.
func Mod97(s string) (int, error) {
	var buf strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			buf.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			buf.WriteString(strconv.Itoa(int(r-'A') + 10))
		default:
			return 0, fmt.Errorf("Mod97: %q: %w", r, domain.ErrIBANChar)
		}

		if buf.Len() >= 9 {
			n, err := strconv.Atoi(buf.String())
			if err != nil {
				return 0, fmt.Errorf("Mod97: %w", err)
			}
			buf.Reset()
			buf.WriteString(strconv.Itoa(n % 97))
		}
	}

	if buf.Len() == 0 {
		return 0, fmt.Errorf("Mod97: empty input: %w", domain.ErrIBANEmpty)
	}
	n, err := strconv.Atoi(buf.String())
	if err != nil {
		return 0, fmt.Errorf("Mod97: %w", err)
	}
	return n % 97, nil
}
