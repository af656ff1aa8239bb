// Package view assembles the cross-keyspace application read model. Section
// fetch failures degrade the view instead of failing it; embedded copies on
// the application record serve as a read-through fallback.
package view

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/overflow"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// section pairs a per-role keyspace with the attribute on the application
// record that carries its embedded fallback copy.
type section struct {
	name         string
	role         domain.Role
	embeddedAttr string
}

// Assembler builds ApplicationViews from the four keyspaces.
type Assembler struct {
	kv       store.KeyValue
	tables   store.Tables
	overflow *overflow.Adapter
	logger   *zap.Logger
}

// NewAssembler wires a view assembler.
func NewAssembler(kv store.KeyValue, tables store.Tables, ov *overflow.Adapter, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{kv: kv, tables: tables, overflow: ov, logger: logger}
}

// Build assembles the view for one application. Missing the application
// record itself is a NOT_FOUND error; anything less degrades the view and is
// reported in Missing.
func (a *Assembler) Build(ctx context.Context, zone, appID string) (domain.ApplicationView, error) {
	key := store.Key{domain.AttrAppID: appID, domain.AttrZone: zone}
	appItem, err := a.kv.Get(ctx, a.tables.Applications, key)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return domain.ApplicationView{}, appErrors.NewNotFound("application not found: " + appID)
		}
		return domain.ApplicationView{}, appErrors.Wrap(err, "failed to load application record")
	}

	v := domain.ApplicationView{
		AppID: appID,
		Zone:  zone,
	}
	if s, ok := appItem[domain.AttrStatus].(string); ok {
		v.Status = s
	}
	if lu, ok := appItem[domain.AttrLastUpdated].(string); ok {
		v.LastUpdated = lu
	}
	if step, ok := appItem[domain.AttrCurrentStep].(float64); ok {
		v.CurrentStep = int(step)
	}
	if info, ok := appItem["application_info"].(map[string]any); ok {
		v.Application = info
	}
	if occ, ok := appItem["occupants"].([]any); ok {
		for _, o := range occ {
			if m, ok := o.(map[string]any); ok {
				v.Occupants = append(v.Occupants, m)
			}
		}
	}

	sections := []section{
		{name: "applicant", role: domain.RoleApplicant, embeddedAttr: "applicant_info"},
		{name: "coapplicants", role: domain.RoleCoApplicant, embeddedAttr: "coapplicant_info"},
		{name: "guarantors", role: domain.RoleGuarantor, embeddedAttr: "guarantor_info"},
	}

	var knownEmails []string
	for _, sec := range sections {
		records, missing := a.loadSection(ctx, sec, appItem, zone, appID)
		v.Missing = append(v.Missing, missing...)

		for _, rec := range records {
			if rec.Email != "" {
				knownEmails = append(knownEmails, normalizeEmail(rec.Email))
			}
		}

		switch sec.role {
		case domain.RoleApplicant:
			if latest := latestRecord(records); latest != nil {
				v.Applicant = latest
			}
		case domain.RoleCoApplicant:
			v.CoApplicants = records
		case domain.RoleGuarantor:
			v.Guarantors = records
		}
	}

	v.PendingInvites = pendingInvites(v.Application, knownEmails)
	return v, nil
}

// loadSection fetches and restores one role's records. On fetch failure it
// falls back to the embedded copy on the application record; only when that
// is absent too does the section go missing.
func (a *Assembler) loadSection(ctx context.Context, sec section, appItem domain.Item, zone, appID string) ([]domain.ParticipantRecord, []string) {
	table, _ := a.tables.ForRole(sec.role)
	items, err := a.kv.QueryByApplication(ctx, table, zone, appID)
	if err != nil {
		a.logger.Warn("section fetch failed, trying embedded copy",
			zap.String("section", sec.name),
			zap.Error(err),
		)
		if embedded, ok := appItem[sec.embeddedAttr].(map[string]any); ok {
			rec, convErr := domain.FromItem[domain.ParticipantRecord](embedded)
			if convErr == nil {
				return []domain.ParticipantRecord{rec}, nil
			}
		}
		return nil, []string{sec.name}
	}

	var missing []string
	records := make([]domain.ParticipantRecord, 0, len(items))
	for _, item := range items {
		restored, lost := a.overflow.Resolve(ctx, item)
		for _, attr := range lost {
			missing = append(missing, sec.name+"."+attr)
		}
		rec, convErr := domain.FromItem[domain.ParticipantRecord](restored)
		if convErr != nil {
			a.logger.Warn("unreadable participant record",
				zap.String("section", sec.name),
				zap.Error(convErr),
			)
			missing = append(missing, sec.name)
			continue
		}
		records = append(records, rec)
	}
	return DedupeByEmail(records), missing
}

// DedupeByEmail collapses records sharing a normalized email, keeping the
// most recently updated one. Records without an email are kept as-is.
func DedupeByEmail(records []domain.ParticipantRecord) []domain.ParticipantRecord {
	byEmail := make(map[string]int)
	out := make([]domain.ParticipantRecord, 0, len(records))
	for _, rec := range records {
		email := normalizeEmail(rec.Email)
		if email == "" {
			out = append(out, rec)
			continue
		}
		if i, seen := byEmail[email]; seen {
			if rec.LastUpdated > out[i].LastUpdated {
				out[i] = rec
			}
			continue
		}
		byEmail[email] = len(out)
		out = append(out, rec)
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func latestRecord(records []domain.ParticipantRecord) *domain.ParticipantRecord {
	var best *domain.ParticipantRecord
	for i := range records {
		if best == nil || records[i].LastUpdated > best.LastUpdated {
			best = &records[i]
		}
	}
	return best
}

// pendingInvites lists additional people named on the application form who do
// not have a stored record yet.
func pendingInvites(appInfo map[string]any, knownEmails []string) []domain.PendingInvite {
	people, ok := appInfo["additional_people"].([]any)
	if !ok {
		return nil
	}
	known := make(map[string]bool, len(knownEmails))
	for _, e := range knownEmails {
		known[e] = true
	}

	var out []domain.PendingInvite
	for _, p := range people {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		email, _ := m["email"].(string)
		if email != "" && known[normalizeEmail(email)] {
			continue
		}
		role, _ := m["role"].(string)
		name, _ := m["name"].(string)
		out = append(out, domain.PendingInvite{Role: role, Name: name, Email: email})
	}
	return out
}
