package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "app_nyc", cfg.ApplicationsTable)
	assert.Equal(t, "Co-Applicants", cfg.CoApplicantsTable)
	assert.Equal(t, 400*1024, cfg.ItemCeilingBytes)
	assert.Equal(t, 350*1024, cfg.ItemBudgetBytes)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("APPLICANTS_TABLE", "applicant_test")
	t.Setenv("ITEM_BUDGET_BYTES", "1024")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "applicant_test", cfg.ApplicantsTable)
	assert.Equal(t, 1024, cfg.ItemBudgetBytes)
}

func TestLoadConfig_BudgetAboveCeilingRejected(t *testing.T) {
	t.Setenv("ITEM_BUDGET_BYTES", "500000")
	t.Setenv("ITEM_CEILING_BYTES", "400000")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_ProductionRequiresBucket(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("OVERFLOW_BUCKET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestEffectiveLimits_DynamicOverrides(t *testing.T) {
	cfg := &Config{
		ItemCeilingBytes: 400 * 1024,
		ItemBudgetBytes:  350 * 1024,
		MaxEventEntries:  5,
		MaxFileEntries:   10,
		MaxStringBytes:   10 * 1024,
		MaxOccupants:     10,
	}
	dyn := &DynamicConfig{Limits: DynamicLimits{
		ItemBudgetBytes: 300 * 1024,
		MaxFileEntries:  4,
	}}

	limits := EffectiveLimits(cfg, dyn)
	assert.Equal(t, 300*1024, limits.BudgetBytes)
	assert.Equal(t, 4, limits.MaxFileEntries)
	// Untouched values keep the static configuration.
	assert.Equal(t, 5, limits.MaxEventEntries)
	assert.Equal(t, 400*1024, limits.CeilingBytes)
}

func TestEffectiveLimits_BudgetCannotExceedCeiling(t *testing.T) {
	cfg := &Config{ItemCeilingBytes: 100, ItemBudgetBytes: 80}
	dyn := &DynamicConfig{Limits: DynamicLimits{ItemBudgetBytes: 200}}
	limits := EffectiveLimits(cfg, dyn)
	assert.Equal(t, 80, limits.BudgetBytes)
}
