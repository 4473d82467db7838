package iban

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartiermarkt/billing/internal/domain"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "canonical swiss iban", raw: "CH93 0076 2011 6238 5295 7"},
		{name: "no spaces", raw: "CH9300762011623852957"},
		{name: "lowercase", raw: "ch93 0076 2011 6238 5295 7"},
		{name: "qr-iban sample", raw: "CH44 3199 9123 0008 8901 2"},
		{name: "another valid account", raw: "CH56 0483 5012 3456 7800 9"},
		{name: "empty", raw: "", wantErr: domain.ErrIBANEmpty},
		{name: "only whitespace", raw: "   ", wantErr: domain.ErrIBANEmpty},
		{name: "too short", raw: "CH93 0076", wantErr: domain.ErrIBANLength},
		{name: "too long", raw: "CH93 0076 2011 6238 5295 77", wantErr: domain.ErrIBANLength},
		{name: "german iban rejected", raw: "DE89 3704 0044 0532 0130 0", wantErr: domain.ErrIBANCountry},
		{name: "last digit altered", raw: "CH93 0076 2011 6238 5295 8", wantErr: domain.ErrIBANChecksum},
		{name: "check digits altered", raw: "CH94 0076 2011 6238 5295 7", wantErr: domain.ErrIBANChecksum},
		{name: "invalid character", raw: "CH93 0076 2011 6238 529_7", wantErr: domain.ErrIBANChar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

// Flipping any single body digit must break the checksum.
func TestValidateChecksumSensitivity(t *testing.T) {
	const valid = "CH9300762011623852957"
	require.NoError(t, Validate(valid))

	for i := 4; i < len(valid); i++ {
		mutated := []byte(valid)
		mutated[i] = '0' + (mutated[i]-'0'+1)%10
		err := Validate(string(mutated))
		require.ErrorIs(t, err, domain.ErrIBANChecksum, "position %d", i)
	}
}

func TestLast4(t *testing.T) {
	assert.Equal(t, "2957", Last4("CH93 0076 2011 6238 5295 7"))
	assert.Equal(t, "2957", Last4("ch9300762011623852957"))
	assert.Equal(t, "", Last4("CH9"))
	assert.Equal(t, "", Last4(""))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "•••• 2957", Mask("CH93 0076 2011 6238 5295 7"))
	assert.Equal(t, "", Mask(""))
}

func TestMod97(t *testing.T) {
	// The rearranged canonical IBAN must reduce to 1.
	rem, err := Mod97("00762011623852957CH93")
	require.NoError(t, err)
	assert.Equal(t, 1, rem)

	// Long inputs exercise the incremental reduction path.
	rem, err = Mod97("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rem, 0)
	assert.Less(t, rem, 97)

	_, err = Mod97("AB-CD")
	require.ErrorIs(t, err, domain.ErrIBANChar)
}
