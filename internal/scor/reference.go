// Package scor generates ISO 11649 Structured Creditor References ("RF"
// scheme) for bank-transfer payment instructions. References are rendered at
// the fixed 25-character width the QR-bill slip expects.
package scor

import (
	"fmt"
	"strings"

	"github.com/quartiermarkt/billing/internal/domain"
	"github.com/quartiermarkt/billing/internal/iban"
)

const (
	// Width is the padded reference width required by the payment slip.
	Width = 25

	// maxBody leaves room for "RF" plus two check digits.
	maxBody = 21
)

// Generate derives the creditor reference for an opaque invoice or purchase
// identifier. Deterministic: the same identifier always yields the same
// reference, so regenerated payment instructions match what was shown before.
func Generate(opaqueID string) (string, error) {
	body := normalize(opaqueID)
	if body == "" {
		return "", fmt.Errorf("Generate: %w", domain.ErrReferenceEmpty)
	}
	if len(body) > maxBody {
		body = body[:maxBody]
	}

	// ISO 11649 convention: checksum over body + "RF00", check digits are
	// 98 minus the remainder.
	rem, err := iban.Mod97(body + "RF00")
	if err != nil {
		return "", fmt.Errorf("Generate: %w", err)
	}
	check := 98 - rem

	ref := fmt.Sprintf("RF%02d%s", check, body)
	return ref + strings.Repeat(" ", Width-len(ref)), nil
}

// Blank is the no-reference placeholder: 25 spaces.
func Blank() string {
	return strings.Repeat(" ", Width)
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
