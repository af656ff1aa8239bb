package domain

import (
	"encoding/json"

	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// ToItem converts a typed record into the open attribute map stored in a
// keyspace. The JSON round-trip keeps the stored attribute names in one place,
// on the struct tags.
func ToItem(rec any) (Item, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, appErrors.NewInternal("failed to encode record", err)
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, appErrors.NewInternal("failed to decode record into item", err)
	}
	return item, nil
}

// FromItem converts a stored attribute map back into a typed record.
// Attributes the type does not declare are dropped.
func FromItem[T any](item Item) (T, error) {
	var rec T
	raw, err := json.Marshal(item)
	if err != nil {
		return rec, appErrors.NewInternal("failed to encode item", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, appErrors.NewInternal("failed to decode item into record", err)
	}
	return rec, nil
}

// CloneItem deep-copies an item so reduction strategies can mutate freely.
func CloneItem(item Item) Item {
	if item == nil {
		return nil
	}
	raw, err := json.Marshal(item)
	if err != nil {
		// Items are produced by ToItem or Clean and always marshal.
		return Item{}
	}
	var out Item
	if err := json.Unmarshal(raw, &out); err != nil {
		return Item{}
	}
	return out
}
