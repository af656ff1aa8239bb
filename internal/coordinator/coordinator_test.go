package coordinator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/identity"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store/memory"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
}

func applicant(zone string) identity.Principal {
	return identity.Principal{UserID: "user-1", Zone: zone, Role: domain.RoleApplicant}
}

func newCoordinator(kv *memory.KeyValue) *Coordinator {
	return New(kv, store.DefaultTables(), zap.NewNop()).WithClock(fixedClock())
}

func TestResolve_ApplicantCreatesApplication(t *testing.T) {
	kv := memory.NewKeyValue()
	c := newCoordinator(kv)

	appID, err := c.Resolve(context.Background(), applicant("zone-a"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(appID, "APP-20250601120000-"))

	// The stub record landed in the applications keyspace.
	items, err := kv.QueryByZone(context.Background(), store.DefaultTables().Applications, "zone-a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, appID, items[0][domain.AttrAppID])
	assert.Equal(t, "draft", items[0][domain.AttrStatus])
	assert.Equal(t, float64(1), items[0][domain.AttrVersion])
}

func TestResolve_ReturnsExistingApplication(t *testing.T) {
	kv := memory.NewKeyValue()
	c := newCoordinator(kv)

	first, err := c.Resolve(context.Background(), applicant("zone-a"))
	require.NoError(t, err)

	second, err := c.Resolve(context.Background(), applicant("zone-a"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, kv.PutCount())
}

func TestResolve_LatestUpdatedWinsAcrossMultiple(t *testing.T) {
	kv := memory.NewKeyValue()
	c := newCoordinator(kv)
	tables := store.DefaultTables()

	old := domain.Item{
		domain.AttrAppID:       "APP-20250101000000-OLDOLD",
		domain.AttrZone:        "zone-a",
		domain.AttrLastUpdated: "2025-01-01T00:00:00Z",
		domain.AttrVersion:     1,
	}
	fresh := domain.Item{
		domain.AttrAppID:       "APP-20250501000000-NEWNEW",
		domain.AttrZone:        "zone-a",
		domain.AttrLastUpdated: "2025-05-01T00:00:00Z",
		domain.AttrVersion:     1,
	}
	require.NoError(t, kv.Put(context.Background(), tables.Applications, old, 0))
	require.NoError(t, kv.Put(context.Background(), tables.Applications, fresh, 0))

	appID, err := c.Resolve(context.Background(), applicant("zone-a"))
	require.NoError(t, err)
	assert.Equal(t, "APP-20250501000000-NEWNEW", appID)
}

func TestResolve_ZonesDoNotLeak(t *testing.T) {
	kv := memory.NewKeyValue()
	c := newCoordinator(kv)

	idA, err := c.Resolve(context.Background(), applicant("zone-a"))
	require.NoError(t, err)
	idB, err := c.Resolve(context.Background(), applicant("zone-b"))
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)
}

func TestResolve_DependentRoleGetsPlaceholder(t *testing.T) {
	kv := memory.NewKeyValue()
	c := newCoordinator(kv)

	p := identity.Principal{UserID: "user-2", Zone: "zone-a", Role: domain.RoleGuarantor}
	appID, err := c.Resolve(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, domain.IsPlaceholderAppID(appID))

	// No stub record is written for dependent roles.
	assert.Equal(t, 0, kv.PutCount())
}

func TestResolve_MissingIdentityRejected(t *testing.T) {
	kv := memory.NewKeyValue()
	c := newCoordinator(kv)

	_, err := c.Resolve(context.Background(), identity.Principal{UserID: "user-1"})
	require.Error(t, err)
	assert.True(t, appErrors.IsMissingIdentity(err))
}

func TestResolve_StoreFailureSurfaces(t *testing.T) {
	kv := memory.NewKeyValue()
	kv.SetError("QueryByZone", appErrors.NewUnavailable("throughput exceeded", nil))
	c := newCoordinator(kv)

	_, err := c.Resolve(context.Background(), applicant("zone-a"))
	require.Error(t, err)
	assert.True(t, appErrors.IsUnavailable(err))
}

func TestTouch_BumpsVersionAndStep(t *testing.T) {
	kv := memory.NewKeyValue()
	c := newCoordinator(kv)
	tables := store.DefaultTables()

	appID, err := c.Resolve(context.Background(), applicant("zone-a"))
	require.NoError(t, err)

	require.NoError(t, c.Touch(context.Background(), "zone-a", appID, 4))

	key := store.Key{domain.AttrAppID: appID, domain.AttrZone: "zone-a"}
	item, err := kv.Get(context.Background(), tables.Applications, key)
	require.NoError(t, err)
	assert.Equal(t, float64(2), item[domain.AttrVersion])
	assert.Equal(t, float64(4), item[domain.AttrCurrentStep])
}

func TestTouch_PlaceholderIsNoop(t *testing.T) {
	kv := memory.NewKeyValue()
	c := newCoordinator(kv)

	require.NoError(t, c.Touch(context.Background(), "zone-a", "APP-PENDING-20250601120000", 2))
	assert.Equal(t, 0, kv.PutCount())
}

func TestLatest_EmptyIsNil(t *testing.T) {
	assert.Nil(t, Latest(nil))
}
