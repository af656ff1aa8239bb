// Package sizelimit enforces the per-item size ceiling by applying named
// reduction strategies in order of increasing aggressiveness.
package sizelimit

import (
	"encoding/json"
	"sort"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// Limits configures the ceiling and the per-field caps the reduction
// strategies trim to.
type Limits struct {
	// CeilingBytes is the hard per-item limit of the keyed store.
	CeilingBytes int
	// BudgetBytes is the soft target reductions aim for, leaving headroom
	// below the hard ceiling.
	BudgetBytes int

	MaxEventEntries int
	MaxFileEntries  int
	MaxStringBytes  int
	MaxOccupants    int
}

// DefaultLimits matches a 400KB keyed-store item ceiling with a 350KB soft
// budget.
func DefaultLimits() Limits {
	return Limits{
		CeilingBytes:    400 * 1024,
		BudgetBytes:     350 * 1024,
		MaxEventEntries: 5,
		MaxFileEntries:  10,
		MaxStringBytes:  10 * 1024,
		MaxOccupants:    10,
	}
}

// Strategy is a named, pure reduction step. Apply must not mutate its input.
type Strategy struct {
	// Name identifies the strategy in logs and in Result.Applied.
	Name string
	// Rank orders strategies from least to most destructive.
	Rank  int
	Apply func(item domain.Item, lim Limits) domain.Item
}

// Result reports the outcome of an Enforce pass.
type Result struct {
	Item    domain.Item
	Applied []string
	Size    int
}

// Enforcer drives reduction strategies until an item fits the ceiling.
// Limits may be swapped at runtime; reads and writes are synchronized.
type Enforcer struct {
	mu         sync.RWMutex
	limits     Limits
	strategies []Strategy
	logger     *zap.Logger
}

// NewEnforcer builds an enforcer with the standard strategy ladder.
func NewEnforcer(limits Limits, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{
		limits: limits,
		strategies: []Strategy{
			TrimGrowthFields(),
			EssentialFieldsOnly(),
			MinimalSkeleton(),
		},
		logger: logger,
	}
}

// Limits returns the configured limits.
func (e *Enforcer) Limits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// SetLimits replaces the limits, typically from a dynamic config reload.
func (e *Enforcer) SetLimits(limits Limits) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits = limits
}

// Measure returns the serialized size of an item in bytes.
func Measure(item domain.Item) int {
	raw, err := json.Marshal(item)
	if err != nil {
		return 0
	}
	return len(raw)
}

// Enforce returns the item unchanged when it already fits, otherwise applies
// strategies in rank order until the item fits the soft budget or every
// strategy is exhausted. An item still over the hard ceiling after the final
// strategy is a fatal RECORD_TOO_LARGE error.
func (e *Enforcer) Enforce(item domain.Item) (Result, error) {
	limits := e.Limits()
	size := Measure(item)
	if size <= limits.BudgetBytes {
		return Result{Item: item, Size: size}, nil
	}

	sorted := make([]Strategy, len(e.strategies))
	copy(sorted, e.strategies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	current := item
	var applied []string
	for _, s := range sorted {
		reduced := s.Apply(domain.CloneItem(current), limits)
		reducedSize := Measure(reduced)
		e.logger.Info("applied size reduction strategy",
			zap.String("strategy", s.Name),
			zap.Int("before_bytes", size),
			zap.Int("after_bytes", reducedSize),
		)
		current = reduced
		size = reducedSize
		applied = append(applied, s.Name)
		if size <= limits.BudgetBytes {
			return Result{Item: current, Applied: applied, Size: size}, nil
		}
	}

	if size > limits.CeilingBytes {
		e.logger.Error("record exceeds ceiling after all reduction strategies",
			zap.Int("size_bytes", size),
			zap.Int("ceiling_bytes", limits.CeilingBytes),
		)
		return Result{}, appErrors.NewRecordTooLarge(size, limits.CeilingBytes)
	}

	// Over budget but under the ceiling is acceptable after full reduction.
	return Result{Item: current, Applied: applied, Size: size}, nil
}

// growthFields are the attributes that accumulate without bound as a
// participant progresses through the application.
var growthFields = []string{
	domain.AttrUploadedMeta,
	domain.AttrWebhookResp,
	domain.AttrWebhookSumm,
	domain.AttrSignatures,
	domain.AttrSignature,
	domain.AttrEncryptedDoc,
}

// entryAttrs is the sub-field whitelist for growth-field entries that survive
// the trim: identity and status metadata stay, raw payloads never do.
var entryAttrs = map[string]bool{
	"id":           true,
	"name":         true,
	"filename":     true,
	"type":         true,
	"status":       true,
	"timestamp":    true,
	"date":         true,
	"size":         true,
	"uploaded_at":  true,
	"created_at":   true,
	"last_updated": true,
}

// TrimGrowthFields caps list-shaped growth fields at their configured maximum
// entries, keeping only the most recent ones and only the whitelisted
// sub-fields of each retained entry, and truncates oversized strings.
func TrimGrowthFields() Strategy {
	return Strategy{
		Name: "trim_growth_fields",
		Rank: 1,
		Apply: func(item domain.Item, lim Limits) domain.Item {
			entryCaps := map[string]int{
				domain.AttrUploadedMeta: lim.MaxFileEntries,
				domain.AttrWebhookResp:  lim.MaxEventEntries,
				domain.AttrWebhookSumm:  lim.MaxEventEntries,
			}
			for _, field := range growthFields {
				entries, ok := item[field].([]any)
				if !ok {
					continue
				}
				if max := entryCaps[field]; max > 0 && len(entries) > max {
					entries = entries[len(entries)-max:]
				}
				trimmed := make([]any, len(entries))
				for i, e := range entries {
					trimmed[i] = entrySummary(e)
				}
				item[field] = trimmed
			}
			if v, ok := item["occupants"].([]any); ok && len(v) > lim.MaxOccupants {
				item["occupants"] = v[:lim.MaxOccupants]
			}
			truncateStrings(item, lim.MaxStringBytes)
			return item
		},
	}
}

// entrySummary reduces an object-shaped growth entry to its whitelisted
// sub-fields. Scalar entries pass through.
func entrySummary(e any) any {
	m, ok := e.(map[string]any)
	if !ok {
		return e
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if entryAttrs[k] {
			out[k] = v
		}
	}
	return out
}

// essentialAttrs are the attributes the essential-fields strategy keeps.
var essentialAttrs = map[string]bool{
	domain.AttrUserID:      true,
	domain.AttrZone:        true,
	domain.AttrAppID:       true,
	domain.AttrRole:        true,
	domain.AttrStatus:      true,
	domain.AttrCurrentStep: true,
	domain.AttrLastUpdated: true,
	domain.AttrCreatedAt:   true,
	domain.AttrVersion:     true,
	domain.AttrStorageMode: true,
	domain.AttrBlobRefs:    true,
	"email":                true,
	"form_data":            true,
	"application_info":     true,
	"fileCount":            true,
	"webhookCount":         true,
	"signatureCount":       true,
	"documentCount":        true,
}

// EssentialFieldsOnly drops everything except the identity, progress, and
// form-payload attributes, leaving counts where growth fields used to be.
func EssentialFieldsOnly() Strategy {
	return Strategy{
		Name: "essential_fields_only",
		Rank: 2,
		Apply: func(item domain.Item, lim Limits) domain.Item {
			dropToWhitelist(item, essentialAttrs)
			truncateStrings(item, lim.MaxStringBytes)
			return item
		},
	}
}

// skeletonAttrs are the attributes the last-resort strategy keeps. The record
// stays resumable: keys, progress markers, and versioning survive.
var skeletonAttrs = map[string]bool{
	domain.AttrUserID:      true,
	domain.AttrZone:        true,
	domain.AttrAppID:       true,
	domain.AttrRole:        true,
	domain.AttrStatus:      true,
	domain.AttrCurrentStep: true,
	domain.AttrLastUpdated: true,
	domain.AttrCreatedAt:   true,
	domain.AttrVersion:     true,
	domain.AttrStorageMode: true,
	domain.AttrBlobRefs:    true,
	"fileCount":            true,
	"webhookCount":         true,
	"signatureCount":       true,
	"documentCount":        true,
}

// countAttrs maps each growth field to the attribute recording how many of
// its entries a destructive strategy dropped.
var countAttrs = map[string]string{
	domain.AttrUploadedMeta: "fileCount",
	domain.AttrWebhookResp:  "webhookCount",
	domain.AttrWebhookSumm:  "webhookCount",
	domain.AttrSignatures:   "signatureCount",
	domain.AttrSignature:    "signatureCount",
	domain.AttrEncryptedDoc: "documentCount",
}

// MinimalSkeleton strips the record down to its keys and progress markers,
// leaving counts of the dropped growth-field entries in their place.
func MinimalSkeleton() Strategy {
	return Strategy{
		Name: "minimal_skeleton",
		Rank: 3,
		Apply: func(item domain.Item, lim Limits) domain.Item {
			dropToWhitelist(item, skeletonAttrs)
			return item
		},
	}
}

// dropToWhitelist removes every attribute outside keep, recording counts for
// the growth fields it drops so the record still says what it lost.
func dropToWhitelist(item domain.Item, keep map[string]bool) {
	counts := make(map[string]int, len(countAttrs))
	for field, attr := range countAttrs {
		if keep[field] {
			continue
		}
		counts[attr] += entryCount(item[field])
	}
	for k := range item {
		if !keep[k] {
			delete(item, k)
		}
	}
	for attr, n := range counts {
		if n > 0 {
			item[attr] = n
		}
	}
}

// entryCount reports how many entries a growth-field value holds. An
// overflow summary marker already carries its own count.
func entryCount(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case []any:
		return len(t)
	case map[string]any:
		if off, _ := t["offloaded"].(bool); off {
			switch c := t["count"].(type) {
			case int:
				return c
			case float64:
				return int(c)
			}
			return 0
		}
		return len(t)
	default:
		return 1
	}
}

// truncateStrings caps every string in the item tree at max bytes. Attribute
// names are left alone.
func truncateStrings(v any, max int) {
	if max <= 0 {
		return
	}
	switch t := v.(type) {
	case domain.Item:
		truncateStrings(map[string]any(t), max)
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok && len(s) > max {
				t[k] = cutString(s, max)
				continue
			}
			truncateStrings(val, max)
		}
	case []any:
		for i, val := range t {
			if s, ok := val.(string); ok && len(s) > max {
				t[i] = cutString(s, max)
				continue
			}
			truncateStrings(val, max)
		}
	}
}

// cutString truncates to at most max bytes without splitting a rune, so the
// result stays valid UTF-8.
func cutString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
