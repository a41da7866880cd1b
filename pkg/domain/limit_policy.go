package domain

import "github.com/plaenen/assetlimits/pkg/validators"

// LimitPolicyAggregateType is the aggregate type name of AccountLimitPolicy.
const LimitPolicyAggregateType = "AccountLimitPolicy"

// AccountLimitPolicy holds the per-account limit. It shares its identity with
// Account but is stored and versioned separately, so limit changes never load
// the asset list.
type AccountLimitPolicy struct {
	AggregateRoot
	limit int
}

// NewAccountLimitPolicy creates a never-saved policy.
func NewAccountLimitPolicy(id AccountID, limit int) (*AccountLimitPolicy, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	return &AccountLimitPolicy{
		AggregateRoot: NewAggregateRoot(string(id), LimitPolicyAggregateType),
		limit:         limit,
	}, nil
}

// RestoreAccountLimitPolicy rebuilds a policy from storage.
func RestoreAccountLimitPolicy(id AccountID, limit int, version int64) *AccountLimitPolicy {
	p := &AccountLimitPolicy{
		AggregateRoot: NewAggregateRoot(string(id), LimitPolicyAggregateType),
		limit:         limit,
	}
	p.SetVersion(version)
	return p
}

// AccountID returns the typed identifier.
func (p *AccountLimitPolicy) AccountID() AccountID {
	return AccountID(p.ID())
}

// Limit returns the maximum number of simultaneously assigned assets.
func (p *AccountLimitPolicy) Limit() int {
	return p.limit
}

// OverrideLimit replaces the limit. A negative limit is rejected and leaves the
// policy unchanged.
func (p *AccountLimitPolicy) OverrideLimit(newLimit int) error {
	if err := validateLimit(newLimit); err != nil {
		return err
	}
	p.limit = newLimit
	return nil
}

// Clone returns an independent copy, version included.
func (p *AccountLimitPolicy) Clone() *AccountLimitPolicy {
	return RestoreAccountLimitPolicy(p.AccountID(), p.limit, p.Version())
}

func validateLimit(limit int) error {
	return validationError(validators.ValidateNonNegative(limit, "limit"))
}
