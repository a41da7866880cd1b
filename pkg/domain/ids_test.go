package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/assetlimits/pkg/domain"
)

func TestNewAsset(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		countryCode string
		wantField   string
	}{
		{name: "valid", id: "123", countryCode: "US"},
		{name: "blank id", id: "", countryCode: "US", wantField: "id"},
		{name: "whitespace id", id: "  ", countryCode: "US", wantField: "id"},
		{name: "blank country", id: "123", countryCode: "\t", wantField: "countryCode"},
		{name: "both blank reports id first", wantField: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.NewAsset(tt.id, tt.countryCode)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, domain.AssetID(tt.id), got.ID)
				assert.Equal(t, domain.CountryCode(tt.countryCode), got.CountryCode)
				return
			}
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestNewAccountID(t *testing.T) {
	id, err := domain.NewAccountID("acc-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id.String())

	_, err = domain.NewAccountID(" ")
	assert.EqualError(t, err, "Account id must not be blank.")

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "accountId", verr.Field)
}

func TestAsset_SameAssetAs(t *testing.T) {
	us := domain.MustAsset("1", "US")
	assert.True(t, us.SameAssetAs(domain.MustAsset("1", "DE")))
	assert.False(t, us.SameAssetAs(domain.MustAsset("2", "US")))
	assert.Equal(t, "Asset(id=1, countryCode=US)", us.String())
}

func TestMustAsset_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { domain.MustAsset("", "US") })
}
