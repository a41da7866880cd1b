package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/plaenen/assetlimits/pkg/idgen"
)

// EventKind tags the variant of a SuspiciousEvent.
type EventKind int

const (
	DuplicateAssignment EventKind = iota + 1
	CrossCountryConflict
	SuperfluousRemoval
)

var eventKindNames = map[EventKind]string{
	DuplicateAssignment:  "duplicate_assignment",
	CrossCountryConflict: "cross_country_conflict",
	SuperfluousRemoval:   "superfluous_removal",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	name, ok := eventKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a kind name written by MarshalText.
func (k *EventKind) UnmarshalText(text []byte) error {
	kind, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseEventKind maps a kind name back to its EventKind.
func ParseEventKind(name string) (EventKind, error) {
	for kind, n := range eventKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// SuspiciousEvent is an immutable audit record of an anomalous but permitted
// state transition. ConflictingCountry is only set for CrossCountryConflict.
type SuspiciousEvent struct {
	ID                 string
	OccurredAt         time.Time
	AccountID          AccountID
	Kind               EventKind
	Asset              Asset
	ConflictingCountry CountryCode
}

// NewDuplicateAssignment reports an assignment that already existed.
func NewDuplicateAssignment(accountID AccountID, asset Asset, now time.Time) SuspiciousEvent {
	return newSuspiciousEvent(DuplicateAssignment, accountID, asset, "", now)
}

// NewCrossCountryConflict reports an asset admitted while it is also assigned in existing.
func NewCrossCountryConflict(accountID AccountID, asset Asset, existing CountryCode, now time.Time) SuspiciousEvent {
	return newSuspiciousEvent(CrossCountryConflict, accountID, asset, existing, now)
}

// NewSuperfluousRemoval reports the removal of an assignment that didn't exist.
func NewSuperfluousRemoval(accountID AccountID, asset Asset, now time.Time) SuspiciousEvent {
	return newSuspiciousEvent(SuperfluousRemoval, accountID, asset, "", now)
}

func newSuspiciousEvent(kind EventKind, accountID AccountID, asset Asset, conflicting CountryCode, now time.Time) SuspiciousEvent {
	return SuspiciousEvent{
		ID:                 idgen.NewSortableID(now),
		OccurredAt:         now,
		AccountID:          accountID,
		Kind:               kind,
		Asset:              asset,
		ConflictingCountry: conflicting,
	}
}

// Suspicious is always true; sinks use it to route audit records.
func (e SuspiciousEvent) Suspicious() bool {
	return true
}

// Description renders a human readable summary of the event.
func (e SuspiciousEvent) Description() string {
	switch e.Kind {
	case DuplicateAssignment:
		return fmt.Sprintf("assigned already assigned asset: %s", e.Asset)
	case CrossCountryConflict:
		return fmt.Sprintf("assigned %s while it was already assigned in %s", e.Asset, e.ConflictingCountry)
	case SuperfluousRemoval:
		return fmt.Sprintf("removed unassigned asset: %s", e.Asset)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Asset)
	}
}

func (e SuspiciousEvent) String() string {
	return fmt.Sprintf("Account (%s) at %s %s", e.AccountID, e.OccurredAt.Format(time.RFC3339), e.Description())
}

type suspiciousEventJSON struct {
	ID                 string      `json:"id"`
	OccurredAt         time.Time   `json:"occurredAt"`
	AccountID          AccountID   `json:"accountId"`
	Kind               EventKind   `json:"kind"`
	Asset              Asset       `json:"asset"`
	ConflictingCountry CountryCode `json:"conflictingCountry,omitempty"`
	Suspicious         bool        `json:"suspicious"`
	Description        string      `json:"description"`
}

// MarshalJSON adds the derived suspicious flag and description.
func (e SuspiciousEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(suspiciousEventJSON{
		ID:                 e.ID,
		OccurredAt:         e.OccurredAt,
		AccountID:          e.AccountID,
		Kind:               e.Kind,
		Asset:              e.Asset,
		ConflictingCountry: e.ConflictingCountry,
		Suspicious:         e.Suspicious(),
		Description:        e.Description(),
	})
}

// UnmarshalJSON reads the format written by MarshalJSON; derived fields are ignored.
func (e *SuspiciousEvent) UnmarshalJSON(data []byte) error {
	var raw suspiciousEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = SuspiciousEvent{
		ID:                 raw.ID,
		OccurredAt:         raw.OccurredAt,
		AccountID:          raw.AccountID,
		Kind:               raw.Kind,
		Asset:              raw.Asset,
		ConflictingCountry: raw.ConflictingCountry,
	}
	return nil
}
