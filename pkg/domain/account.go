package domain

import "time"

// AccountAggregateType is the aggregate type name of Account.
const AccountAggregateType = "Account"

// Account tracks the assets an account is currently downloading and enforces
// its limit. Account is not safe for concurrent use; concurrent writers are
// serialized by the version check performed when a store saves it.
//
// Invariants after every successful mutation: len(Assets()) <= Limit(), and no
// two entries share both id and country code.
type Account struct {
	AggregateRoot
	limit  int
	assets assetList
}

// NewAccount creates an empty, never-saved account snapshot.
func NewAccount(id AccountID, limit int) *Account {
	return &Account{
		AggregateRoot: NewAggregateRoot(string(id), AccountAggregateType),
		limit:         limit,
		assets:        newAssetList(0),
	}
}

// RestoreAccount rebuilds an account snapshot from storage. Exact duplicates in
// assets are collapsed to their first occurrence.
func RestoreAccount(id AccountID, limit int, version int64, assets []Asset) *Account {
	a := &Account{
		AggregateRoot: NewAggregateRoot(string(id), AccountAggregateType),
		limit:         limit,
		assets:        newAssetList(len(assets)),
	}
	for _, asset := range assets {
		a.assets.add(asset)
	}
	a.SetVersion(version)
	return a
}

// AccountID returns the typed identifier.
func (a *Account) AccountID() AccountID {
	return AccountID(a.ID())
}

// Limit returns the limit read together with this snapshot.
func (a *Account) Limit() int {
	return a.limit
}

// Assets returns a copy of the assigned assets in insertion order.
func (a *Account) Assets() []Asset {
	return a.assets.snapshot()
}

// Len returns the number of assigned assets.
func (a *Account) Len() int {
	return a.assets.len()
}

// Clone returns an independent copy of the snapshot, version included.
func (a *Account) Clone() *Account {
	return RestoreAccount(a.AccountID(), a.limit, a.Version(), a.assets.entries)
}

// Assign starts tracking asset.
//
// Re-assigning an existing (id, countryCode) pair changes nothing and reports a
// DuplicateAssignment event. Otherwise the asset is rejected with a
// *LimitExceededError when the account is full, or appended, reporting one
// CrossCountryConflict per country the same asset id is already assigned in.
func (a *Account) Assign(asset Asset, now time.Time) ([]SuspiciousEvent, error) {
	if a.assets.contains(asset) {
		return []SuspiciousEvent{NewDuplicateAssignment(a.AccountID(), asset, now)}, nil
	}

	if a.assets.len() >= a.limit {
		return nil, &LimitExceededError{Limit: a.limit}
	}

	var events []SuspiciousEvent
	for _, existing := range a.assets.countriesOf(asset.ID) {
		events = append(events, NewCrossCountryConflict(a.AccountID(), asset, existing, now))
	}

	a.assets.add(asset)
	return events, nil
}

// Unassign stops tracking asset. Removing an assignment that doesn't exist is
// not an error; it reports a SuperfluousRemoval event instead.
func (a *Account) Unassign(asset Asset, now time.Time) []SuspiciousEvent {
	if a.assets.remove(asset) {
		return nil
	}
	return []SuspiciousEvent{NewSuperfluousRemoval(a.AccountID(), asset, now)}
}
