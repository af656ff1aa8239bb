package config

import (
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/sizelimit"
)

// EffectiveLimits merges the static limits with any dynamic overrides,
// dynamic winning where set.
func EffectiveLimits(cfg *Config, dyn *DynamicConfig) sizelimit.Limits {
	limits := sizelimit.Limits{
		CeilingBytes:    cfg.ItemCeilingBytes,
		BudgetBytes:     cfg.ItemBudgetBytes,
		MaxEventEntries: cfg.MaxEventEntries,
		MaxFileEntries:  cfg.MaxFileEntries,
		MaxStringBytes:  cfg.MaxStringBytes,
		MaxOccupants:    cfg.MaxOccupants,
	}
	if dyn == nil {
		return limits
	}

	if dyn.Limits.ItemBudgetBytes > 0 && dyn.Limits.ItemBudgetBytes <= limits.CeilingBytes {
		limits.BudgetBytes = dyn.Limits.ItemBudgetBytes
	}
	if dyn.Limits.MaxEventEntries > 0 {
		limits.MaxEventEntries = dyn.Limits.MaxEventEntries
	}
	if dyn.Limits.MaxFileEntries > 0 {
		limits.MaxFileEntries = dyn.Limits.MaxFileEntries
	}
	if dyn.Limits.MaxStringBytes > 0 {
		limits.MaxStringBytes = dyn.Limits.MaxStringBytes
	}
	return limits
}

// EffectiveSpillThreshold returns the field spill threshold with dynamic
// overrides applied.
func EffectiveSpillThreshold(cfg *Config, dyn *DynamicConfig) int {
	if dyn != nil && dyn.Limits.FieldSpillBytes > 0 {
		return dyn.Limits.FieldSpillBytes
	}
	return cfg.FieldSpillBytes
}
