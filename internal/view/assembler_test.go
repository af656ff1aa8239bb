package view

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/overflow"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/sizelimit"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store/memory"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

const (
	testAppID = "APP-20250601120000-ABCDEF"
	testZone  = "zone-a"
)

type fixture struct {
	kv        *memory.KeyValue
	blobs     *memory.Blob
	assembler *Assembler
	tables    store.Tables
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := memory.NewKeyValue()
	blobs := memory.NewBlob()
	tables := store.DefaultTables()
	enforcer := sizelimit.NewEnforcer(sizelimit.DefaultLimits(), zap.NewNop())
	ov := overflow.NewAdapter(blobs, enforcer, 1024, zap.NewNop())
	return &fixture{
		kv:        kv,
		blobs:     blobs,
		assembler: NewAssembler(kv, tables, ov, zap.NewNop()),
		tables:    tables,
	}
}

func (f *fixture) seedApplication(t *testing.T, extra domain.Item) {
	t.Helper()
	item := domain.Item{
		domain.AttrAppID:       testAppID,
		domain.AttrZone:        testZone,
		domain.AttrStatus:      "in_progress",
		domain.AttrCurrentStep: 3,
		domain.AttrLastUpdated: "2025-06-01T12:00:00Z",
		domain.AttrVersion:     1,
	}
	for k, v := range extra {
		item[k] = v
	}
	require.NoError(t, f.kv.Put(context.Background(), f.tables.Applications, item, 0))
}

func (f *fixture) seedParticipant(t *testing.T, table store.Table, userID, email, updated string) {
	t.Helper()
	item := domain.Item{
		domain.AttrUserID:      userID,
		domain.AttrZone:        testZone,
		domain.AttrAppID:       testAppID,
		domain.AttrRole:        "participant",
		"email":                email,
		domain.AttrLastUpdated: updated,
		domain.AttrVersion:     1,
	}
	require.NoError(t, f.kv.Put(context.Background(), table, item, 0))
}

func TestBuild_MissingApplicationIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.assembler.Build(context.Background(), testZone, testAppID)
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestBuild_FullView(t *testing.T) {
	f := newFixture(t)
	f.seedApplication(t, domain.Item{
		"application_info": map[string]any{"building": "123 Main St"},
		"occupants":        []any{map[string]any{"name": "Kid"}},
	})
	f.seedParticipant(t, f.tables.Applicants, "user-1", "ada@example.com", "2025-06-01T10:00:00Z")
	f.seedParticipant(t, f.tables.CoApplicants, "user-2", "bob@example.com", "2025-06-01T11:00:00Z")
	f.seedParticipant(t, f.tables.Guarantors, "user-3", "eve@example.com", "2025-06-01T11:30:00Z")

	v, err := f.assembler.Build(context.Background(), testZone, testAppID)
	require.NoError(t, err)
	assert.Empty(t, v.Missing)
	require.NotNil(t, v.Applicant)
	assert.Equal(t, "user-1", v.Applicant.UserID)
	assert.Len(t, v.CoApplicants, 1)
	assert.Len(t, v.Guarantors, 1)
	assert.Len(t, v.Occupants, 1)
	assert.Equal(t, "in_progress", v.Status)
	assert.Equal(t, 3, v.CurrentStep)
	assert.Equal(t, "123 Main St", v.Application["building"])
}

func TestBuild_DedupesSavedAsNewRecordsByEmail(t *testing.T) {
	f := newFixture(t)
	f.seedApplication(t, nil)
	f.seedParticipant(t, f.tables.CoApplicants, "user-2", "bob@example.com", "2025-06-01T10:00:00Z")
	f.seedParticipant(t, f.tables.CoApplicants, "user-21", "Bob@Example.com", "2025-06-01T11:00:00Z")

	v, err := f.assembler.Build(context.Background(), testZone, testAppID)
	require.NoError(t, err)
	require.Len(t, v.CoApplicants, 1)
	assert.Equal(t, "user-21", v.CoApplicants[0].UserID)
}

func TestBuild_SectionFailureDegradesView(t *testing.T) {
	f := newFixture(t)
	f.seedApplication(t, nil)
	f.seedParticipant(t, f.tables.Applicants, "user-1", "ada@example.com", "2025-06-01T10:00:00Z")

	// Every participant query fails and no embedded copies exist.
	f.kv.SetError("QueryByApplication", appErrors.NewUnavailable("throughput exceeded", nil))

	v, err := f.assembler.Build(context.Background(), testZone, testAppID)
	require.NoError(t, err)
	assert.Nil(t, v.Applicant)
	assert.ElementsMatch(t, []string{"applicant", "coapplicants", "guarantors"}, v.Missing)
}

func TestBuild_EmbeddedCopyServesAsFallback(t *testing.T) {
	f := newFixture(t)
	f.seedApplication(t, domain.Item{
		"applicant_info": map[string]any{
			domain.AttrUserID:      "user-1",
			"email":                "ada@example.com",
			domain.AttrLastUpdated: "2025-05-30T00:00:00Z",
		},
	})
	f.kv.SetError("QueryByApplication", appErrors.NewUnavailable("throughput exceeded", nil))

	v, err := f.assembler.Build(context.Background(), testZone, testAppID)
	require.NoError(t, err)
	require.NotNil(t, v.Applicant)
	assert.Equal(t, "user-1", v.Applicant.UserID)
	assert.NotContains(t, v.Missing, "applicant")
	assert.Contains(t, v.Missing, "coapplicants")
}

func TestBuild_PendingInvitesExcludeKnownEmails(t *testing.T) {
	f := newFixture(t)
	f.seedApplication(t, domain.Item{
		"application_info": map[string]any{
			"additional_people": []any{
				map[string]any{"role": "coapplicant", "name": "Bob", "email": "bob@example.com"},
				map[string]any{"role": "guarantor", "name": "Grace", "email": "grace@example.com"},
			},
		},
	})
	f.seedParticipant(t, f.tables.CoApplicants, "user-2", "bob@example.com", "2025-06-01T10:00:00Z")

	v, err := f.assembler.Build(context.Background(), testZone, testAppID)
	require.NoError(t, err)
	require.Len(t, v.PendingInvites, 1)
	assert.Equal(t, "grace@example.com", v.PendingInvites[0].Email)
	assert.Equal(t, "guarantor", v.PendingInvites[0].Role)
}

func TestDedupeByEmail_KeepsRecordsWithoutEmail(t *testing.T) {
	records := []domain.ParticipantRecord{
		{UserID: "a", LastUpdated: "2025-01-01T00:00:00Z"},
		{UserID: "b", LastUpdated: "2025-01-02T00:00:00Z"},
	}
	assert.Len(t, DedupeByEmail(records), 2)
}
