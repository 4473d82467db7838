package payout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quartiermarkt/billing/internal/domain"
)

// Validation runs before anything is written; an invalid request must fail
// without touching the database at all (no connection is even configured).
func TestRequestChangeFailsFastOnBadInput(t *testing.T) {
	w := NewWorkflow(nil, nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		holder  string
		iban    string
		wantErr error
	}{
		{name: "empty holder", holder: "  ", iban: "CH93 0076 2011 6238 5295 7", wantErr: domain.ErrMissingHolder},
		{name: "empty iban", holder: "Mia Keller", iban: "", wantErr: domain.ErrIBANEmpty},
		{name: "foreign iban", holder: "Mia Keller", iban: "LI21 0881 0000 2324 013A A", wantErr: domain.ErrIBANCountry},
		{name: "checksum failure", holder: "Mia Keller", iban: "CH93 0076 2011 6238 5295 8", wantErr: domain.ErrIBANChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.RequestChange(ctx, uuid.New(), tt.holder, tt.iban, "seller:mia")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
