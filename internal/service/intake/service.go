// Package intake orchestrates participant saves and reads across the rental
// application keyspaces: identity resolution, sanitization, size enforcement,
// overflow, optimistic writes, and view assembly.
package intake

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/coordinator"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/identity"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/overflow"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/view"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/observability"
)

// SaveInput carries one participant save. FormData accepts any shape the form
// layer produces; it is sanitized before persistence.
type SaveInput struct {
	FormData           any
	UploadedFilesMeta  []any
	WebhookResponses   any
	WebhookSummary     any
	Signatures         any
	EncryptedDocuments any
	CurrentStep        int
	Status             string
}

// SaveResult reports what a save actually persisted.
type SaveResult struct {
	AppID       string
	UserID      string
	Version     int
	StorageMode string
	SizeBytes   int
}

// Service is the intake orchestrator.
type Service struct {
	kv        store.KeyValue
	tables    store.Tables
	overflow  *overflow.Adapter
	coord     *coordinator.Coordinator
	assembler *view.Assembler
	ids       identity.Provider
	metrics   *observability.Metrics
	retry     store.RetryConfig
	logger    *zap.Logger
	now       func() time.Time
}

// Config wires a Service.
type Config struct {
	KeyValue  store.KeyValue
	Tables    store.Tables
	Overflow  *overflow.Adapter
	Coord     *coordinator.Coordinator
	Assembler *view.Assembler
	Identity  identity.Provider
	Metrics   *observability.Metrics
	Retry     store.RetryConfig
	Logger    *zap.Logger
}

// NewService creates the intake service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = store.DefaultRetryConfig()
	}
	return &Service{
		kv:        cfg.KeyValue,
		tables:    cfg.Tables,
		overflow:  cfg.Overflow,
		coord:     cfg.Coord,
		assembler: cfg.Assembler,
		ids:       cfg.Identity,
		metrics:   cfg.Metrics,
		retry:     retry,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// withPrincipal runs op with the current principal, refreshing credentials
// and retrying exactly once when they turn out to be stale.
func (s *Service) withPrincipal(ctx context.Context, op func(identity.Principal) error) error {
	p, err := s.ids.Current(ctx)
	if err == nil {
		err = op(p)
	}
	if err == nil || !appErrors.IsAuthExpired(err) {
		return err
	}

	s.logger.Info("credentials expired mid-operation, refreshing and retrying once")
	s.metrics.RecordAuthRefresh()
	p, refreshErr := s.ids.Refresh(ctx)
	if refreshErr != nil {
		return appErrors.Wrap(refreshErr, "credential refresh failed")
	}
	return op(p)
}

// SaveParticipant persists the principal's record for their role, attaching
// it to the zone's application.
func (s *Service) SaveParticipant(ctx context.Context, in SaveInput) (SaveResult, error) {
	return s.saveAs(ctx, "save_participant", in, false)
}

// SaveAsNew persists an additional record for the principal's role under a
// numbered user id, so one login can hold several co-applicant or guarantor
// records.
func (s *Service) SaveAsNew(ctx context.Context, in SaveInput) (SaveResult, error) {
	return s.saveAs(ctx, "save_as_new", in, true)
}

func (s *Service) saveAs(ctx context.Context, op string, in SaveInput, asNew bool) (SaveResult, error) {
	start := s.now()
	var res SaveResult
	err := s.withPrincipal(ctx, func(p identity.Principal) error {
		table, ok := s.tables.ForRole(p.Role)
		if !ok {
			return appErrors.NewValidation(fmt.Sprintf("role %q cannot save participant records", p.RawRole))
		}
		if asNew && p.Role == domain.RoleApplicant {
			return appErrors.NewValidation("primary applicants hold a single record")
		}

		appID, err := s.coord.Resolve(ctx, p)
		if err != nil {
			return err
		}

		userID := p.UserID
		if asNew {
			userID, err = s.nextUserID(ctx, table, p)
			if err != nil {
				return err
			}
		}

		saved, err := s.writeParticipant(ctx, table, p, userID, appID, in)
		if err != nil {
			return err
		}

		if err := s.coord.Touch(ctx, p.Zone, appID, in.CurrentStep); err != nil {
			s.logger.Warn("saved participant but failed to touch application",
				zap.String("appid", appID),
				zap.Error(err),
			)
		}
		res = saved
		return nil
	})
	s.metrics.RecordOperation(op, s.now().Sub(start), err)
	return res, err
}

// writeParticipant runs the full save pipeline for one record: load current
// version, merge, sanitize, offload, put.
func (s *Service) writeParticipant(ctx context.Context, table store.Table, p identity.Principal, userID, appID string, in SaveInput) (SaveResult, error) {
	key := store.Key{domain.AttrUserID: userID, domain.AttrZone: p.Zone}
	existing, err := s.kv.Get(ctx, table, key)
	if err != nil && !appErrors.IsNotFound(err) {
		return SaveResult{}, appErrors.Wrap(err, "failed to load current record")
	}

	expected := 0
	createdAt := domain.Timestamp(s.now())
	if existing != nil {
		expected = itemInt(existing, domain.AttrVersion)
		if ca, ok := existing[domain.AttrCreatedAt].(string); ok && ca != "" {
			createdAt = ca
		}
	}

	rec := domain.ParticipantRecord{
		UserID:      userID,
		Zone:        p.Zone,
		AppID:       appID,
		Role:        string(p.Role),
		Email:       p.Email,
		CurrentStep: in.CurrentStep,
		Status:      in.Status,
		LastUpdated: domain.Timestamp(s.now()),
		CreatedAt:   createdAt,
		Version:     expected + 1,
	}
	item, err := domain.ToItem(rec)
	if err != nil {
		return SaveResult{}, err
	}

	setCleaned(item, "form_data", in.FormData)
	setCleaned(item, domain.AttrUploadedMeta, in.UploadedFilesMeta)
	setCleaned(item, domain.AttrWebhookResp, in.WebhookResponses)
	setCleaned(item, domain.AttrWebhookSumm, in.WebhookSummary)
	setCleaned(item, domain.AttrSignatures, in.Signatures)
	setCleaned(item, domain.AttrEncryptedDoc, in.EncryptedDocuments)
	if fd, ok := item["form_data"].(map[string]any); ok {
		rec.FormData = fd
	}

	prepared, err := s.overflow.Prepare(ctx, userID, item)
	if err != nil {
		return SaveResult{}, err
	}

	err = store.RetryWithBackoff(ctx, s.retry, func() error {
		return s.kv.Put(ctx, table, prepared, expected)
	})
	if err != nil {
		if appErrors.IsConflict(err) {
			s.metrics.RecordConflict()
			return SaveResult{}, appErrors.NewConflict("record was modified concurrently, reload and retry", err)
		}
		return SaveResult{}, appErrors.Wrap(err, "failed to persist participant record")
	}

	// The new item carries fresh blob keys, so whatever the previous
	// version had offloaded is now unreachable.
	if existing != nil {
		s.overflow.Discard(ctx, existing)
	}

	size := itemSize(prepared)
	mode, _ := prepared[domain.AttrStorageMode].(string)
	s.metrics.RecordItemBytes(table.Name, size)
	s.logger.Info("saved participant record",
		zap.String("table", table.Name),
		zap.String("userId", userID),
		zap.String("appid", appID),
		zap.Int("version", expected+1),
		zap.String("storage_mode", mode),
		zap.Int("size_bytes", size),
	)

	s.syncEmbedded(ctx, p, appID, rec)

	return SaveResult{
		AppID:       appID,
		UserID:      userID,
		Version:     expected + 1,
		StorageMode: mode,
		SizeBytes:   size,
	}, nil
}

// nextUserID mints the next numbered user id for save-as-new records:
// user-1, user-12, user-13, ...
func (s *Service) nextUserID(ctx context.Context, table store.Table, p identity.Principal) (string, error) {
	items, err := s.kv.QueryByUserPrefix(ctx, table, p.Zone, p.UserID)
	if err != nil {
		return "", appErrors.Wrap(err, "failed to list existing records for user")
	}
	max := 0
	for _, item := range items {
		id, _ := item[domain.AttrUserID].(string)
		if len(id) <= len(p.UserID) {
			continue
		}
		n := 0
		for _, r := range id[len(p.UserID):] {
			if r < '0' || r > '9' {
				n = 0
				break
			}
			n = n*10 + int(r-'0')
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%d", p.UserID, max+1), nil
}

// GetParticipant returns the principal's own record for their role, with
// offloaded fields restored. Degraded fields are listed in the second return.
func (s *Service) GetParticipant(ctx context.Context) (domain.ParticipantRecord, []string, error) {
	start := s.now()
	var rec domain.ParticipantRecord
	var missing []string
	err := s.withPrincipal(ctx, func(p identity.Principal) error {
		table, ok := s.tables.ForRole(p.Role)
		if !ok {
			return appErrors.NewValidation(fmt.Sprintf("role %q has no participant records", p.RawRole))
		}
		key := store.Key{domain.AttrUserID: p.UserID, domain.AttrZone: p.Zone}
		item, err := s.kv.Get(ctx, table, key)
		if err != nil {
			return err
		}
		restored, lost := s.overflow.Resolve(ctx, item)
		missing = lost
		rec, err = domain.FromItem[domain.ParticipantRecord](restored)
		return err
	})
	s.metrics.RecordOperation("get_participant", s.now().Sub(start), err)
	return rec, missing, err
}

// BuildView assembles the cross-keyspace view of the principal's application.
func (s *Service) BuildView(ctx context.Context) (domain.ApplicationView, error) {
	start := s.now()
	var v domain.ApplicationView
	err := s.withPrincipal(ctx, func(p identity.Principal) error {
		appID, err := s.coord.Resolve(ctx, p)
		if err != nil {
			return err
		}
		if domain.IsPlaceholderAppID(appID) {
			return appErrors.NewNotFound("no application exists for this zone yet")
		}
		v, err = s.assembler.Build(ctx, p.Zone, appID)
		return err
	})
	s.metrics.RecordOperation("build_view", s.now().Sub(start), err)
	return v, err
}

// DeleteParticipant removes the principal's record for their role.
func (s *Service) DeleteParticipant(ctx context.Context) error {
	start := s.now()
	err := s.withPrincipal(ctx, func(p identity.Principal) error {
		table, ok := s.tables.ForRole(p.Role)
		if !ok {
			return appErrors.NewValidation(fmt.Sprintf("role %q has no participant records", p.RawRole))
		}
		key := store.Key{domain.AttrUserID: p.UserID, domain.AttrZone: p.Zone}
		return s.kv.Delete(ctx, table, key)
	})
	s.metrics.RecordOperation("delete_participant", s.now().Sub(start), err)
	return err
}
