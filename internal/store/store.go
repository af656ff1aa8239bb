// Package store defines the narrow persistence contracts the intake pipeline
// writes through: a keyed item store with zone-scoped queries and optimistic
// versioning, and a blob store for offloaded field payloads.
package store

import (
	"context"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
)

// Table names one keyspace and its key attributes.
type Table struct {
	Name         string
	PartitionKey string
	SortKey      string
}

// Key addresses a single item in a table.
type Key map[string]string

// KeyValue is the keyed item store. Writes are conditional on the item's
// current version: a Put with expectedVersion 0 requires the item not to
// exist, any other value requires the stored version to match. A failed
// condition surfaces as a CONFLICT error.
type KeyValue interface {
	// Put writes the item under its key attributes with the optimistic
	// version condition described above. The item itself must already
	// carry the new version.
	Put(ctx context.Context, table Table, item domain.Item, expectedVersion int) error

	// Get fetches one item by its full key. A missing item is a NOT_FOUND
	// error.
	Get(ctx context.Context, table Table, key Key) (domain.Item, error)

	// QueryByZone returns every item in the table claimed by the zone.
	QueryByZone(ctx context.Context, table Table, zone string) ([]domain.Item, error)

	// QueryByApplication returns the zone's items belonging to one
	// application id.
	QueryByApplication(ctx context.Context, table Table, zone, appID string) ([]domain.Item, error)

	// QueryByUserPrefix returns the zone's items whose partition key equals
	// the user id or starts with it followed by a numeric suffix, covering
	// the save-as-new record family of one user.
	QueryByUserPrefix(ctx context.Context, table Table, zone, userID string) ([]domain.Item, error)

	// Delete removes one item by its full key. Deleting a missing item is
	// not an error.
	Delete(ctx context.Context, table Table, key Key) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// Blob is the overflow store for offloaded field payloads.
type Blob interface {
	// Put stores the payload under key and returns an addressable URL.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get fetches a payload previously stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a payload. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Tables groups the four keyspaces of the rental intake system.
type Tables struct {
	Applications Table
	Applicants   Table
	CoApplicants Table
	Guarantors   Table
}

// DefaultTables returns the production keyspace layout.
func DefaultTables() Tables {
	return Tables{
		Applications: Table{Name: "app_nyc", PartitionKey: domain.AttrAppID, SortKey: domain.AttrZone},
		Applicants:   Table{Name: "applicant_nyc", PartitionKey: domain.AttrUserID, SortKey: domain.AttrZone},
		CoApplicants: Table{Name: "Co-Applicants", PartitionKey: domain.AttrUserID, SortKey: domain.AttrZone},
		Guarantors:   Table{Name: "Guarantors_nyc", PartitionKey: domain.AttrUserID, SortKey: domain.AttrZone},
	}
}

// ForRole maps a participant role to its keyspace.
func (t Tables) ForRole(role domain.Role) (Table, bool) {
	switch role {
	case domain.RoleApplicant:
		return t.Applicants, true
	case domain.RoleCoApplicant:
		return t.CoApplicants, true
	case domain.RoleGuarantor:
		return t.Guarantors, true
	}
	return Table{}, false
}

// ParticipantTables lists the per-role keyspaces in assembly order.
func (t Tables) ParticipantTables() []Table {
	return []Table{t.Applicants, t.CoApplicants, t.Guarantors}
}
