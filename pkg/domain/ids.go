package domain

import (
	"fmt"

	"github.com/plaenen/assetlimits/pkg/validators"
)

// AccountID identifies the principal whose downloads are limited.
type AccountID string

// NewAccountID validates that id is not blank.
func NewAccountID(id string) (AccountID, error) {
	if err := validationError(validators.ValidateRequired(id, "accountId")); err != nil {
		return "", err
	}
	return AccountID(id), nil
}

func (id AccountID) String() string {
	return string(id)
}

// AssetID identifies a downloadable item.
type AssetID string

// NewAssetID validates that id is not blank.
func NewAssetID(id string) (AssetID, error) {
	if err := validationError(validators.ValidateRequired(id, "id")); err != nil {
		return "", err
	}
	return AssetID(id), nil
}

// CountryCode is the country context an asset was requested from.
type CountryCode string

// NewCountryCode validates that code is not blank.
func NewCountryCode(code string) (CountryCode, error) {
	if err := validationError(validators.ValidateRequired(code, "countryCode")); err != nil {
		return "", err
	}
	return CountryCode(code), nil
}

// Asset is a downloadable item together with the country it was requested from.
// Two assets are the same asset when their IDs match and the same assignment
// when both fields match.
type Asset struct {
	ID          AssetID     `json:"id"`
	CountryCode CountryCode `json:"countryCode"`
}

// NewAsset validates both fields.
func NewAsset(id, countryCode string) (Asset, error) {
	if err := validationError(
		validators.ValidateRequired(id, "id"),
		validators.ValidateRequired(countryCode, "countryCode"),
	); err != nil {
		return Asset{}, err
	}
	return Asset{ID: AssetID(id), CountryCode: CountryCode(countryCode)}, nil
}

// MustAsset is NewAsset for literals known to be valid.
func MustAsset(id, countryCode string) Asset {
	asset, err := NewAsset(id, countryCode)
	if err != nil {
		panic(err)
	}
	return asset
}

// SameAssetAs reports whether both assets share an ID, regardless of country.
func (a Asset) SameAssetAs(other Asset) bool {
	return a.ID == other.ID
}

func (a Asset) String() string {
	return fmt.Sprintf("Asset(id=%s, countryCode=%s)", a.ID, a.CountryCode)
}
