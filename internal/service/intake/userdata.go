package intake

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/identity"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/sanitize"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// UserRecord is one participant record listed together with its parent
// application's context, so a dashboard entry can show which property and
// primary applicant it belongs to.
type UserRecord struct {
	domain.ParticipantRecord
	ApplicationInfo map[string]any `json:"application_info,omitempty"`
	ApplicantName   string         `json:"applicant_name,omitempty"`
	ApplicantEmail  string         `json:"applicant_email,omitempty"`
}

// UserData aggregates every record a user holds across the participant
// keyspaces, including save-as-new records under numbered ids.
type UserData struct {
	Applicant    []UserRecord `json:"applicant,omitempty"`
	CoApplicants []UserRecord `json:"coapplicants,omitempty"`
	Guarantors   []UserRecord `json:"guarantors,omitempty"`

	// Missing names keyspaces or fields that could not be fully loaded.
	Missing []string `json:"missing,omitempty"`
}

// appContext is the slice of the parent application a listed record is
// presented with.
type appContext struct {
	info  map[string]any
	name  string
	email string
	ok    bool
}

// GetAllUserData returns every record the principal holds in any keyspace,
// each resolved to its parent application for context. A keyspace or parent
// application that cannot be loaded degrades the result instead of failing
// it, as long as at least one keyspace responds.
func (s *Service) GetAllUserData(ctx context.Context) (UserData, error) {
	start := s.now()
	var data UserData
	err := s.withPrincipal(ctx, func(p identity.Principal) error {
		failures := 0
		apps := make(map[string]appContext)
		parent := func(appID string) appContext {
			if appID == "" || domain.IsPlaceholderAppID(appID) {
				return appContext{ok: true}
			}
			if cached, hit := apps[appID]; hit {
				return cached
			}
			key := store.Key{domain.AttrAppID: appID, domain.AttrZone: p.Zone}
			item, gErr := s.kv.Get(ctx, s.tables.Applications, key)
			if gErr != nil {
				s.logger.Warn("failed to load parent application for listing",
					zap.String("appid", appID),
					zap.Error(gErr),
				)
				apps[appID] = appContext{}
				return appContext{}
			}
			info, _ := item["application_info"].(map[string]any)
			c := appContext{info: info, ok: true}
			if embedded, eok := item["applicant_info"].(map[string]any); eok {
				c.email, _ = embedded["email"].(string)
				c.name = applicantName(embedded)
			}
			apps[appID] = c
			return c
		}

		load := func(table store.Table, name string, dst *[]UserRecord) {
			items, qErr := s.kv.QueryByUserPrefix(ctx, table, p.Zone, p.UserID)
			if qErr != nil {
				s.logger.Warn("failed to load user records from keyspace",
					zap.String("table", table.Name),
					zap.Error(qErr),
				)
				data.Missing = append(data.Missing, name)
				failures++
				return
			}
			for _, item := range items {
				restored, lost := s.overflow.Resolve(ctx, item)
				for _, attr := range lost {
					data.Missing = append(data.Missing, name+"."+attr)
				}
				rec, convErr := domain.FromItem[domain.ParticipantRecord](restored)
				if convErr != nil {
					data.Missing = append(data.Missing, name)
					continue
				}
				entry := UserRecord{ParticipantRecord: rec}
				if c := parent(rec.AppID); c.ok {
					entry.ApplicationInfo = c.info
					entry.ApplicantName = c.name
					entry.ApplicantEmail = c.email
				} else {
					data.Missing = append(data.Missing, name+".application")
				}
				*dst = append(*dst, entry)
			}
		}

		load(s.tables.Applicants, "applicant", &data.Applicant)
		load(s.tables.CoApplicants, "coapplicants", &data.CoApplicants)
		load(s.tables.Guarantors, "guarantors", &data.Guarantors)

		if failures == 3 {
			return appErrors.NewUnavailable("no keyspace could be queried", nil)
		}
		return nil
	})
	s.metrics.RecordOperation("get_all_user_data", s.now().Sub(start), err)
	return data, err
}

// applicantName digs a display name out of an embedded applicant copy.
func applicantName(embedded map[string]any) string {
	fd, _ := embedded["form_data"].(map[string]any)
	for _, k := range []string{"name", "full_name"} {
		if s, ok := fd[k].(string); ok && s != "" {
			return s
		}
	}
	first, _ := fd["first_name"].(string)
	last, _ := fd["last_name"].(string)
	return strings.TrimSpace(first + " " + last)
}

// DeleteAllUserData removes every record the principal holds across the
// participant keyspaces. It reports how many records were removed.
func (s *Service) DeleteAllUserData(ctx context.Context) (int, error) {
	start := s.now()
	deleted := 0
	err := s.withPrincipal(ctx, func(p identity.Principal) error {
		for _, table := range s.tables.ParticipantTables() {
			items, qErr := s.kv.QueryByUserPrefix(ctx, table, p.Zone, p.UserID)
			if qErr != nil {
				return appErrors.Wrap(qErr, "failed to list records for deletion")
			}
			for _, item := range items {
				id, _ := item[domain.AttrUserID].(string)
				key := store.Key{domain.AttrUserID: id, domain.AttrZone: p.Zone}
				if dErr := s.kv.Delete(ctx, table, key); dErr != nil {
					return appErrors.Wrap(dErr, "failed to delete user record")
				}
				deleted++
			}
		}
		s.logger.Info("deleted all user records",
			zap.String("userId", p.UserID),
			zap.String("zone", p.Zone),
			zap.Int("count", deleted),
		)
		return nil
	})
	s.metrics.RecordOperation("delete_all_user_data", s.now().Sub(start), err)
	return deleted, err
}

// DraftMetadata returns the lightweight listing of the principal's records,
// without form payloads or growth fields.
func (s *Service) DraftMetadata(ctx context.Context) ([]domain.DraftMetadata, error) {
	start := s.now()
	var out []domain.DraftMetadata
	err := s.withPrincipal(ctx, func(p identity.Principal) error {
		for _, table := range s.tables.ParticipantTables() {
			items, qErr := s.kv.QueryByUserPrefix(ctx, table, p.Zone, p.UserID)
			if qErr != nil {
				return appErrors.Wrap(qErr, "failed to list drafts")
			}
			for _, item := range items {
				out = append(out, domain.DraftMetadata{
					AppID:       itemString(item, domain.AttrAppID),
					Zone:        itemString(item, domain.AttrZone),
					Role:        itemString(item, domain.AttrRole),
					Status:      itemString(item, domain.AttrStatus),
					CurrentStep: itemInt(item, domain.AttrCurrentStep),
					LastUpdated: itemString(item, domain.AttrLastUpdated),
					StorageMode: itemString(item, domain.AttrStorageMode),
				})
			}
		}
		return nil
	})
	s.metrics.RecordOperation("draft_metadata", s.now().Sub(start), err)
	return out, err
}

// setCleaned sanitizes a value into the item, skipping nils so absent inputs
// do not overwrite attributes with null.
func setCleaned(item domain.Item, attr string, val any) {
	if val == nil {
		return
	}
	cleaned := sanitize.Clean(val)
	if cleaned == nil {
		return
	}
	item[attr] = cleaned
}

func itemString(item domain.Item, attr string) string {
	s, _ := item[attr].(string)
	return s
}

func itemInt(item domain.Item, attr string) int {
	switch v := item[attr].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func itemSize(item domain.Item) int {
	raw, err := json.Marshal(item)
	if err != nil {
		return 0
	}
	return len(raw)
}
