// Package memory provides in-memory implementations of the store contracts
// for tests and local development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// KeyValue is an in-memory store.KeyValue with error injection.
type KeyValue struct {
	mu     sync.RWMutex
	tables map[string]map[string]domain.Item
	errs   map[string]error
	puts   int
}

// NewKeyValue creates an empty in-memory keyed store.
func NewKeyValue() *KeyValue {
	return &KeyValue{
		tables: make(map[string]map[string]domain.Item),
		errs:   make(map[string]error),
	}
}

// SetError makes every subsequent call of the named operation ("Put", "Get",
// "QueryByZone", ...) fail with err. A nil err clears the injection.
func (s *KeyValue) SetError(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, op)
		return
	}
	s.errs[op] = err
}

// PutCount returns how many successful Puts were made.
func (s *KeyValue) PutCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

func (s *KeyValue) injected(op string) error {
	return s.errs[op]
}

func itemKey(table store.Table, item domain.Item) (string, error) {
	pk, _ := item[table.PartitionKey].(string)
	sk, _ := item[table.SortKey].(string)
	if pk == "" || sk == "" {
		return "", appErrors.NewValidation(fmt.Sprintf("item is missing key attributes %s/%s", table.PartitionKey, table.SortKey))
	}
	return pk + "|" + sk, nil
}

func (s *KeyValue) Put(ctx context.Context, table store.Table, item domain.Item, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("Put"); err != nil {
		return err
	}

	key, err := itemKey(table, item)
	if err != nil {
		return err
	}

	rows := s.tables[table.Name]
	if rows == nil {
		rows = make(map[string]domain.Item)
		s.tables[table.Name] = rows
	}

	existing, exists := rows[key]
	if expectedVersion == 0 {
		if exists {
			return appErrors.NewConflict("item already exists", nil)
		}
	} else {
		if !exists {
			return appErrors.NewConflict("item was deleted concurrently", nil)
		}
		if currentVersion(existing) != expectedVersion {
			return appErrors.NewConflict("version mismatch", nil)
		}
	}

	rows[key] = domain.CloneItem(item)
	s.puts++
	return nil
}

func currentVersion(item domain.Item) int {
	switch v := item[domain.AttrVersion].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func (s *KeyValue) Get(ctx context.Context, table store.Table, key store.Key) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("Get"); err != nil {
		return nil, err
	}

	k := key[table.PartitionKey] + "|" + key[table.SortKey]
	item, ok := s.tables[table.Name][k]
	if !ok {
		return nil, appErrors.NewNotFound(fmt.Sprintf("item not found in %s", table.Name))
	}
	return domain.CloneItem(item), nil
}

func (s *KeyValue) QueryByZone(ctx context.Context, table store.Table, zone string) ([]domain.Item, error) {
	return s.query(ctx, table, "QueryByZone", func(item domain.Item) bool {
		z, _ := item[domain.AttrZone].(string)
		return z == zone
	})
}

func (s *KeyValue) QueryByApplication(ctx context.Context, table store.Table, zone, appID string) ([]domain.Item, error) {
	return s.query(ctx, table, "QueryByApplication", func(item domain.Item) bool {
		z, _ := item[domain.AttrZone].(string)
		a, _ := item[domain.AttrAppID].(string)
		return z == zone && a == appID
	})
}

func (s *KeyValue) QueryByUserPrefix(ctx context.Context, table store.Table, zone, userID string) ([]domain.Item, error) {
	return s.query(ctx, table, "QueryByUserPrefix", func(item domain.Item) bool {
		z, _ := item[domain.AttrZone].(string)
		pk, _ := item[table.PartitionKey].(string)
		return z == zone && matchesUserPrefix(pk, userID)
	})
}

func matchesUserPrefix(pk, userID string) bool {
	if pk == userID {
		return true
	}
	if !strings.HasPrefix(pk, userID) {
		return false
	}
	suffix := pk[len(userID):]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return suffix != ""
}

func (s *KeyValue) query(ctx context.Context, table store.Table, op string, match func(domain.Item) bool) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected(op); err != nil {
		return nil, err
	}

	var out []domain.Item
	for _, item := range s.tables[table.Name] {
		if match(item) {
			out = append(out, domain.CloneItem(item))
		}
	}
	return out, nil
}

func (s *KeyValue) Delete(ctx context.Context, table store.Table, key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("Delete"); err != nil {
		return err
	}

	k := key[table.PartitionKey] + "|" + key[table.SortKey]
	delete(s.tables[table.Name], k)
	return nil
}

func (s *KeyValue) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.injected("Ping")
}

// Blob is an in-memory store.Blob with error injection.
type Blob struct {
	mu    sync.RWMutex
	items map[string][]byte
	errs  map[string]error
}

// NewBlob creates an empty in-memory blob store.
func NewBlob() *Blob {
	return &Blob{
		items: make(map[string][]byte),
		errs:  make(map[string]error),
	}
}

// SetError makes every subsequent call of the named operation fail with err.
func (b *Blob) SetError(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, op)
		return
	}
	b.errs[op] = err
}

// Len returns how many payloads are stored.
func (b *Blob) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

func (b *Blob) Put(ctx context.Context, key string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errs["Put"]; err != nil {
		return "", err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.items[key] = cp
	return "memory://" + key, nil
}

func (b *Blob) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.errs["Get"]; err != nil {
		return nil, err
	}
	data, ok := b.items[key]
	if !ok {
		return nil, appErrors.NewNotFound("blob not found: " + key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (b *Blob) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errs["Delete"]; err != nil {
		return err
	}
	delete(b.items, key)
	return nil
}
