package intake

import (
	"context"

	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/identity"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// ApplicationInput carries the application-level form payload the primary
// applicant saves.
type ApplicationInput struct {
	ApplicationInfo any
	Occupants       []any
	CurrentStep     int
	Status          string
}

// SaveApplication persists the application-level record. Only the primary
// applicant may call it.
func (s *Service) SaveApplication(ctx context.Context, in ApplicationInput) (SaveResult, error) {
	start := s.now()
	var res SaveResult
	err := s.withPrincipal(ctx, func(p identity.Principal) error {
		if p.Role != domain.RoleApplicant {
			return appErrors.NewValidation("only the primary applicant can save the application record")
		}

		appID, err := s.coord.Resolve(ctx, p)
		if err != nil {
			return err
		}

		key := store.Key{domain.AttrAppID: appID, domain.AttrZone: p.Zone}
		item, err := s.kv.Get(ctx, s.tables.Applications, key)
		if err != nil {
			return appErrors.Wrap(err, "failed to load application record")
		}
		expected := itemInt(item, domain.AttrVersion)

		setCleaned(item, "application_info", in.ApplicationInfo)
		setCleaned(item, "occupants", in.Occupants)
		if in.Status != "" {
			item[domain.AttrStatus] = in.Status
		}
		if in.CurrentStep > itemInt(item, domain.AttrCurrentStep) {
			item[domain.AttrCurrentStep] = in.CurrentStep
		}
		item[domain.AttrLastUpdated] = domain.Timestamp(s.now())
		item[domain.AttrVersion] = expected + 1

		prepared, err := s.overflow.Prepare(ctx, appID, item)
		if err != nil {
			return err
		}

		err = store.RetryWithBackoff(ctx, s.retry, func() error {
			return s.kv.Put(ctx, s.tables.Applications, prepared, expected)
		})
		if err != nil {
			if appErrors.IsConflict(err) {
				s.metrics.RecordConflict()
				return appErrors.NewConflict("application was modified concurrently, reload and retry", err)
			}
			return appErrors.Wrap(err, "failed to persist application record")
		}

		size := itemSize(prepared)
		s.metrics.RecordItemBytes(s.tables.Applications.Name, size)
		s.logger.Info("saved application record",
			zap.String("appid", appID),
			zap.String("zone", p.Zone),
			zap.Int("version", expected+1),
			zap.Int("size_bytes", size),
		)

		res = SaveResult{
			AppID:       appID,
			UserID:      p.UserID,
			Version:     expected + 1,
			StorageMode: itemString(prepared, domain.AttrStorageMode),
			SizeBytes:   size,
		}
		return nil
	})
	s.metrics.RecordOperation("save_application", s.now().Sub(start), err)
	return res, err
}

// embeddedAttrForRole maps a role to the application-record attribute holding
// its embedded fallback copy.
func embeddedAttrForRole(role domain.Role) string {
	switch role {
	case domain.RoleApplicant:
		return "applicant_info"
	case domain.RoleCoApplicant:
		return "coapplicant_info"
	case domain.RoleGuarantor:
		return "guarantor_info"
	}
	return ""
}

// syncEmbedded refreshes the trimmed copy of a participant record kept on the
// application record, so reads can fall back to it when a keyspace is down.
// Failures are logged, never surfaced: the authoritative record already
// landed.
func (s *Service) syncEmbedded(ctx context.Context, p identity.Principal, appID string, rec domain.ParticipantRecord) {
	attr := embeddedAttrForRole(p.Role)
	if attr == "" || domain.IsPlaceholderAppID(appID) {
		return
	}

	trimmed := domain.ParticipantRecord{
		UserID:      rec.UserID,
		Zone:        rec.Zone,
		AppID:       rec.AppID,
		Role:        rec.Role,
		Email:       rec.Email,
		FormData:    rec.FormData,
		CurrentStep: rec.CurrentStep,
		Status:      rec.Status,
		LastUpdated: rec.LastUpdated,
		CreatedAt:   rec.CreatedAt,
	}
	copyItem, err := domain.ToItem(trimmed)
	if err != nil {
		return
	}

	key := store.Key{domain.AttrAppID: appID, domain.AttrZone: p.Zone}
	item, err := s.kv.Get(ctx, s.tables.Applications, key)
	if err != nil {
		s.logger.Warn("skipping embedded copy refresh, application unreadable",
			zap.String("appid", appID),
			zap.Error(err),
		)
		return
	}
	expected := itemInt(item, domain.AttrVersion)
	item[attr] = map[string]any(copyItem)
	item[domain.AttrVersion] = expected + 1

	if err := s.kv.Put(ctx, s.tables.Applications, item, expected); err != nil {
		s.logger.Warn("failed to refresh embedded copy",
			zap.String("appid", appID),
			zap.String("attr", attr),
			zap.Error(err),
		)
	}
}
