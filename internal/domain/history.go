package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JSONValue holds an arbitrary content value as stored in the database.
// A nil Raw means "did not previously exist", which is distinct from the
// JSON literal null.
type JSONValue struct {
	Raw json.RawMessage
}

func NewJSONValue(v any) (JSONValue, error) {
	if v == nil {
		return JSONValue{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return JSONValue{}, fmt.Errorf("%w: value is not serializable: %v", ErrValidation, err)
	}
	return JSONValue{Raw: raw}, nil
}

func (v JSONValue) IsNull() bool { return len(v.Raw) == 0 }

// Decode unmarshals the stored value into out.
func (v JSONValue) Decode(out any) error {
	if v.IsNull() {
		return fmt.Errorf("%w: value is null", ErrNotFound)
	}
	return json.Unmarshal(v.Raw, out)
}

// Equal reports semantic equality of two values: both are normalized through
// a decode/re-encode round trip so that map key order and whitespace do not
// count as changes. encoding/json emits object keys sorted, which makes the
// re-encoded form canonical.
func (v JSONValue) Equal(other JSONValue) bool {
	if v.IsNull() || other.IsNull() {
		return v.IsNull() == other.IsNull()
	}
	return canonicalize(v.Raw) == canonicalize(other.Raw)
}

func canonicalize(raw json.RawMessage) string {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	normalized, err := json.Marshal(decoded)
	if err != nil {
		return string(raw)
	}
	return string(normalized)
}

// HistoryEntry is one immutable audit record of a field or item mutation.
// Exactly one of FieldKey and ItemID is set. A null OldValue records a
// creation. Entries are never updated; retention trimming is the only delete.
type HistoryEntry struct {
	ID       string
	SiteID   string
	FieldKey *string
	ItemID   *string

	// CollectionType is recorded alongside ItemID so a restore can re-create
	// an item that was deleted after the entry was written.
	CollectionType *string

	OldValue  JSONValue
	NewValue  JSONValue
	ChangedAt time.Time
	ChangedBy *string

	// ChangedByEmail is populated on reads joined with the users table.
	ChangedByEmail *string
}

func (e *HistoryEntry) Validate() error {
	if strings.TrimSpace(e.SiteID) == "" {
		return fmt.Errorf("%w: siteId is required", ErrValidation)
	}
	hasField := e.FieldKey != nil && strings.TrimSpace(*e.FieldKey) != ""
	hasItem := e.ItemID != nil && strings.TrimSpace(*e.ItemID) != ""
	if hasField == hasItem {
		return fmt.Errorf("%w: exactly one of fieldKey and itemId must be set", ErrValidation)
	}
	if e.NewValue.IsNull() && e.OldValue.IsNull() {
		return fmt.Errorf("%w: entry must record a value", ErrValidation)
	}
	return nil
}

// IsFieldEntry reports whether the entry tracks a content field (as opposed
// to a collection item).
func (e *HistoryEntry) IsFieldEntry() bool {
	return e.FieldKey != nil && *e.FieldKey != ""
}

// RestoreValue is the value a restore of this entry writes back: the prior
// state when one was recorded, otherwise the entry's own value (restoring a
// creation re-applies it).
func (e *HistoryEntry) RestoreValue() JSONValue {
	if !e.OldValue.IsNull() {
		return e.OldValue
	}
	return e.NewValue
}
