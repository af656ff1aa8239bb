// Package overflow moves growth fields that would blow the keyed-store item
// ceiling into the blob store, leaving summary markers behind, and restores
// them on read.
package overflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/sizelimit"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/observability"
)

// spillField binds an item attribute to the blob kind it offloads as.
type spillField struct {
	attr string
	kind domain.BlobRefKind
}

// spillOrder lists offloadable attributes, heaviest accumulators first.
var spillOrder = []spillField{
	{domain.AttrUploadedMeta, domain.BlobKindFiles},
	{domain.AttrWebhookResp, domain.BlobKindEvents},
	{domain.AttrWebhookSumm, domain.BlobKindEvents},
	{domain.AttrEncryptedDoc, domain.BlobKindDocuments},
	{domain.AttrSignatures, domain.BlobKindSignatures},
	{domain.AttrSignature, domain.BlobKindSignatures},
}

// Adapter decides between inline and hybrid storage for an item and performs
// the field offloading.
type Adapter struct {
	blobs    store.Blob
	enforcer *sizelimit.Enforcer

	// fieldThreshold is the minimum serialized field size worth a blob
	// round-trip. Smaller fields stay inline.
	mu             sync.RWMutex
	fieldThreshold int

	metrics *observability.Metrics
	logger  *zap.Logger
}

// WithMetrics attaches operation counters to the adapter.
func (a *Adapter) WithMetrics(m *observability.Metrics) *Adapter {
	a.metrics = m
	return a
}

// SetFieldThreshold replaces the spill threshold at runtime.
func (a *Adapter) SetFieldThreshold(threshold int) {
	if threshold <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fieldThreshold = threshold
}

func (a *Adapter) threshold() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fieldThreshold
}

// NewAdapter wires an overflow adapter over a blob store and size enforcer.
func NewAdapter(blobs store.Blob, enforcer *sizelimit.Enforcer, fieldThreshold int, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fieldThreshold <= 0 {
		fieldThreshold = 50 * 1024
	}
	return &Adapter{
		blobs:          blobs,
		enforcer:       enforcer,
		fieldThreshold: fieldThreshold,
		logger:         logger,
	}
}

// Prepare returns the item ready to persist. An item under the soft budget is
// stored inline and untouched. An oversized item is first run through the
// cheap growth-field trim; only when trimming is not enough are spillable
// fields offloaded to blobs, from the untrimmed item so the blobs keep full
// fidelity, with any remaining excess reduced by the strategy ladder.
// Prepare never mutates its input.
func (a *Adapter) Prepare(ctx context.Context, owner string, item domain.Item) (domain.Item, error) {
	size := sizelimit.Measure(item)
	limits := a.enforcer.Limits()
	if size <= limits.BudgetBytes {
		out := domain.CloneItem(item)
		out[domain.AttrStorageMode] = string(domain.StorageModeDirect)
		delete(out, domain.AttrBlobRefs)
		return out, nil
	}

	trim := sizelimit.TrimGrowthFields()
	trimmed := trim.Apply(domain.CloneItem(item), limits)
	if trimmedSize := sizelimit.Measure(trimmed); trimmedSize <= limits.BudgetBytes {
		trimmed[domain.AttrStorageMode] = string(domain.StorageModeDirect)
		delete(trimmed, domain.AttrBlobRefs)
		a.metrics.RecordReduction(trim.Name)
		a.logger.Info("trimmed item under budget without offloading",
			zap.Int("before_bytes", size),
			zap.Int("after_bytes", trimmedSize),
		)
		return trimmed, nil
	}

	out := domain.CloneItem(item)
	var refs []domain.BlobRef

	for _, f := range spillOrder {
		val, ok := out[f.attr]
		if !ok || val == nil {
			continue
		}
		payload, err := json.Marshal(val)
		if err != nil || len(payload) < a.threshold() {
			continue
		}

		key := fmt.Sprintf("%s/%s/%s.json", f.kind, owner, uuid.New().String())
		url, putErr := a.blobs.Put(ctx, key, payload)
		if putErr != nil {
			// The field is dropped rather than risking the whole save;
			// its marker records how much was lost.
			a.logger.Warn("blob offload failed, dropping field",
				zap.String("field", f.attr),
				zap.String("key", key),
				zap.Error(putErr),
			)
			out[f.attr] = summaryMarker(f.kind, val)
			continue
		}

		out[f.attr] = summaryMarker(f.kind, val)
		refs = append(refs, domain.BlobRef{Kind: f.kind, Key: key, URL: url})
		a.metrics.RecordOverflow(string(f.kind))
		a.logger.Info("offloaded field to blob store",
			zap.String("field", f.attr),
			zap.String("key", key),
			zap.Int("bytes", len(payload)),
		)

		if sizelimit.Measure(out) <= limits.BudgetBytes {
			break
		}
	}

	if len(refs) > 0 {
		out[domain.AttrStorageMode] = string(domain.StorageModeHybrid)
		encoded, err := refsToAny(refs)
		if err != nil {
			return nil, err
		}
		out[domain.AttrBlobRefs] = encoded
	} else {
		out[domain.AttrStorageMode] = string(domain.StorageModeDirect)
	}

	res, err := a.enforcer.Enforce(out)
	if err != nil {
		return nil, err
	}
	for _, name := range res.Applied {
		a.metrics.RecordReduction(name)
	}
	return res.Item, nil
}

// Discard deletes the blobs a superseded hybrid item pointed at. Every save
// mints fresh blob keys, so nothing else can still reference them. Failures
// only cost storage and are logged, not surfaced.
func (a *Adapter) Discard(ctx context.Context, item domain.Item) {
	if item == nil {
		return
	}
	mode, _ := item[domain.AttrStorageMode].(string)
	if mode != string(domain.StorageModeHybrid) {
		return
	}
	refs, err := refsFromItem(item)
	if err != nil {
		a.logger.Warn("unreadable blob references on superseded item", zap.Error(err))
		return
	}
	for _, ref := range refs {
		if err := a.blobs.Delete(ctx, ref.Key); err != nil {
			a.logger.Warn("failed to delete superseded blob",
				zap.String("key", ref.Key),
				zap.Error(err),
			)
		}
	}
}

// Resolve restores offloaded fields from the blob store. A blob that cannot
// be fetched degrades only its own field; the returned slice names the
// attributes left unrestored.
func (a *Adapter) Resolve(ctx context.Context, item domain.Item) (domain.Item, []string) {
	mode, _ := item[domain.AttrStorageMode].(string)
	if mode != string(domain.StorageModeHybrid) {
		return item, nil
	}

	refs, err := refsFromItem(item)
	if err != nil {
		a.logger.Warn("unreadable blob references on hybrid item", zap.Error(err))
		return item, []string{domain.AttrBlobRefs}
	}

	out := domain.CloneItem(item)
	var missing []string
	for _, ref := range refs {
		attr := attrForRef(out, ref.Kind)
		if attr == "" {
			continue
		}
		data, getErr := a.blobs.Get(ctx, ref.Key)
		if getErr != nil {
			a.logger.Warn("failed to fetch offloaded field",
				zap.String("key", ref.Key),
				zap.String("field", attr),
				zap.Error(getErr),
			)
			missing = append(missing, attr)
			continue
		}
		var restored any
		if err := json.Unmarshal(data, &restored); err != nil {
			a.logger.Warn("corrupt offloaded field payload",
				zap.String("key", ref.Key),
				zap.Error(err),
			)
			missing = append(missing, attr)
			continue
		}
		out[attr] = restored
	}
	return out, missing
}

// summaryMarker replaces an offloaded field inline, keeping enough shape for
// listings to show what exists without fetching the blob.
func summaryMarker(kind domain.BlobRefKind, val any) map[string]any {
	count := 1
	switch v := val.(type) {
	case []any:
		count = len(v)
	case map[string]any:
		count = len(v)
	}
	return map[string]any{
		"offloaded": true,
		"kind":      string(kind),
		"count":     count,
	}
}

// attrForRef finds the attribute whose summary marker matches the ref kind
// and has not been restored yet.
func attrForRef(item domain.Item, kind domain.BlobRefKind) string {
	for _, f := range spillOrder {
		if f.kind != kind {
			continue
		}
		marker, ok := item[f.attr].(map[string]any)
		if !ok {
			continue
		}
		if off, _ := marker["offloaded"].(bool); off && marker["kind"] == string(kind) {
			return f.attr
		}
	}
	return ""
}

func refsToAny(refs []domain.BlobRef) (any, error) {
	raw, err := json.Marshal(refs)
	if err != nil {
		return nil, appErrors.NewInternal("failed to encode blob references", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, appErrors.NewInternal("failed to decode blob references", err)
	}
	return out, nil
}

func refsFromItem(item domain.Item) ([]domain.BlobRef, error) {
	raw, err := json.Marshal(item[domain.AttrBlobRefs])
	if err != nil {
		return nil, err
	}
	var refs []domain.BlobRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}
