// Package coordinator resolves which application a participant's save belongs
// to, minting application ids and stub records when none exists yet.
package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/identity"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// Coordinator binds participant saves to a zone's application record.
type Coordinator struct {
	kv     store.KeyValue
	tables store.Tables
	logger *zap.Logger
	now    func() time.Time
}

// New creates a coordinator over the keyed store.
func New(kv store.KeyValue, tables store.Tables, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{kv: kv, tables: tables, logger: logger, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Resolve returns the application id the principal's save should attach to.
//
// The zone's applications are scanned and the most recently updated one wins.
// When the zone has none, a primary applicant mints a fresh id and a stub
// application record; dependent roles get a placeholder id so their save can
// proceed, to be adopted once the applicant creates the application.
func (c *Coordinator) Resolve(ctx context.Context, p identity.Principal) (string, error) {
	if !p.Valid() {
		return "", appErrors.NewMissingIdentity("cannot resolve application without user and zone")
	}

	items, err := c.kv.QueryByZone(ctx, c.tables.Applications, p.Zone)
	if err != nil {
		return "", appErrors.Wrap(err, "failed to scan applications for zone")
	}

	if latest := Latest(items); latest != nil {
		appID, _ := (*latest)[domain.AttrAppID].(string)
		if appID != "" {
			return appID, nil
		}
	}

	if p.Role != domain.RoleApplicant {
		placeholder := domain.NewPlaceholderAppID(c.now())
		c.logger.Warn("dependent role saving before application exists, minting placeholder id",
			zap.String("zone", p.Zone),
			zap.String("role", string(p.Role)),
			zap.String("appid", placeholder),
		)
		return placeholder, nil
	}

	return c.createApplication(ctx, p)
}

func (c *Coordinator) createApplication(ctx context.Context, p identity.Principal) (string, error) {
	now := c.now()
	rec := domain.ApplicationRecord{
		AppID:       domain.NewAppID(now),
		Zone:        p.Zone,
		Status:      "draft",
		CurrentStep: 0,
		LastUpdated: domain.Timestamp(now),
		CreatedAt:   domain.Timestamp(now),
		Version:     1,
	}
	item, err := domain.ToItem(rec)
	if err != nil {
		return "", err
	}

	if err := c.kv.Put(ctx, c.tables.Applications, item, 0); err != nil {
		if appErrors.IsConflict(err) {
			// Another participant created it between our scan and write;
			// re-resolve instead of failing the save.
			items, qErr := c.kv.QueryByZone(ctx, c.tables.Applications, p.Zone)
			if qErr == nil {
				if latest := Latest(items); latest != nil {
					if appID, _ := (*latest)[domain.AttrAppID].(string); appID != "" {
						return appID, nil
					}
				}
			}
		}
		return "", appErrors.Wrap(err, "failed to create application record")
	}

	c.logger.Info("created application record",
		zap.String("zone", p.Zone),
		zap.String("appid", rec.AppID),
	)
	return rec.AppID, nil
}

// Touch bumps the application's last_updated and current step after a
// participant save. Lost races are retried once against the fresh version.
func (c *Coordinator) Touch(ctx context.Context, zone, appID string, step int) error {
	if domain.IsPlaceholderAppID(appID) {
		return nil
	}
	for attempt := 0; attempt < 2; attempt++ {
		key := store.Key{domain.AttrAppID: appID, domain.AttrZone: zone}
		item, err := c.kv.Get(ctx, c.tables.Applications, key)
		if err != nil {
			if appErrors.IsNotFound(err) {
				return nil
			}
			return appErrors.Wrap(err, "failed to load application for touch")
		}

		ver := itemVersion(item)
		item[domain.AttrLastUpdated] = domain.Timestamp(c.now())
		item[domain.AttrVersion] = ver + 1
		if step > itemStep(item) {
			item[domain.AttrCurrentStep] = step
		}

		err = c.kv.Put(ctx, c.tables.Applications, item, ver)
		if err == nil {
			return nil
		}
		if !appErrors.IsConflict(err) {
			return appErrors.Wrap(err, "failed to update application record")
		}
	}
	c.logger.Warn("gave up touching application after repeated conflicts",
		zap.String("appid", appID),
		zap.String("zone", zone),
	)
	return nil
}

// Latest picks the item with the greatest last_updated. RFC 3339 strings
// order chronologically, so a plain string compare suffices.
func Latest(items []domain.Item) *domain.Item {
	var best *domain.Item
	var bestStamp string
	for i := range items {
		stamp, _ := items[i][domain.AttrLastUpdated].(string)
		if best == nil || stamp > bestStamp {
			best = &items[i]
			bestStamp = stamp
		}
	}
	return best
}

func itemVersion(item domain.Item) int {
	switch v := item[domain.AttrVersion].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func itemStep(item domain.Item) int {
	switch v := item[domain.AttrCurrentStep].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
