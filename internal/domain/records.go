// Package domain holds the record shapes stored in the rental application
// keyspaces and the assembled read models built from them.
package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Role identifies which participant of an application a record belongs to.
type Role string

const (
	RoleApplicant   Role = "applicant"
	RoleCoApplicant Role = "coapplicant"
	RoleGuarantor   Role = "guarantor"
	RoleOccupant    Role = "occupant"
)

// ParseRole normalizes a raw role claim to one of the known roles.
// Suffix digits are ignored, so "coapplicant2" maps to RoleCoApplicant.
func ParseRole(raw string) (Role, bool) {
	base := strings.ToLower(strings.TrimSpace(raw))
	base = strings.TrimRight(base, "0123456789")
	base = strings.ReplaceAll(base, "-", "")
	base = strings.ReplaceAll(base, "_", "")
	switch base {
	case "applicant", "primaryapplicant":
		return RoleApplicant, true
	case "coapplicant":
		return RoleCoApplicant, true
	case "guarantor":
		return RoleGuarantor, true
	case "occupant":
		return RoleOccupant, true
	}
	return "", false
}

// StorageMode records how a persisted item keeps its heavyweight fields.
type StorageMode string

const (
	// StorageModeDirect means every field lives in the keyed store item.
	StorageModeDirect StorageMode = "direct"
	// StorageModeHybrid means one or more fields were offloaded to blobs.
	StorageModeHybrid StorageMode = "hybrid"
)

// BlobRefKind tags what was offloaded so restoration can route each reference
// back to the field it came from.
type BlobRefKind string

const (
	BlobKindFiles      BlobRefKind = "files"
	BlobKindEvents     BlobRefKind = "events"
	BlobKindSignatures BlobRefKind = "signatures"
	BlobKindDocuments  BlobRefKind = "documents"
)

// BlobRef points to an offloaded field payload in the blob store.
type BlobRef struct {
	Kind BlobRefKind `json:"kind"`
	Key  string      `json:"key"`
	URL  string      `json:"url,omitempty"`
}

// Item is the open attribute map a keyspace row is stored as.
type Item map[string]any

// Common attribute names shared across keyspaces.
const (
	AttrUserID       = "userId"
	AttrZone         = "zoneinfo"
	AttrAppID        = "appid"
	AttrRole         = "role"
	AttrStatus       = "status"
	AttrCurrentStep  = "current_step"
	AttrLastUpdated  = "last_updated"
	AttrCreatedAt    = "created_at"
	AttrVersion      = "version"
	AttrStorageMode  = "storage_mode"
	AttrBlobRefs     = "blob_refs"
	AttrUploadedMeta = "uploaded_files_metadata"
	AttrWebhookResp  = "webhook_responses"
	AttrWebhookSumm  = "webhook_summary"
	AttrSignatures   = "signatures"
	AttrSignature    = "signature"
	AttrEncryptedDoc = "encrypted_documents"
)

// ApplicationRecord is the zone-scoped row in the applications keyspace. It is
// keyed by appid and zone and coordinates every participant of one rental
// application.
type ApplicationRecord struct {
	AppID           string    `json:"appid"`
	Zone            string    `json:"zoneinfo"`
	ApplicationInfo Item      `json:"application_info,omitempty"`
	Occupants       []Item    `json:"occupants,omitempty"`
	Status          string    `json:"status,omitempty"`
	CurrentStep     int       `json:"current_step"`
	LastUpdated     string    `json:"last_updated"`
	CreatedAt       string    `json:"created_at"`
	Version         int       `json:"version"`
	StorageMode     string    `json:"storage_mode,omitempty"`
	BlobRefs        []BlobRef `json:"blob_refs,omitempty"`
}

// ParticipantRecord is a row in one of the per-role keyspaces (applicant,
// co-applicant, guarantor). It is keyed by userId and zone and carries the
// per-person form payload plus the growth fields that may be offloaded.
type ParticipantRecord struct {
	UserID      string `json:"userId"`
	Zone        string `json:"zoneinfo"`
	AppID       string `json:"appid"`
	Role        string `json:"role"`
	Email       string `json:"email,omitempty"`
	FormData    Item   `json:"form_data,omitempty"`
	CurrentStep int    `json:"current_step"`
	Status      string `json:"status,omitempty"`

	UploadedFilesMeta  []Item `json:"uploaded_files_metadata,omitempty"`
	WebhookResponses   Item   `json:"webhook_responses,omitempty"`
	WebhookSummary     Item   `json:"webhook_summary,omitempty"`
	Signatures         Item   `json:"signatures,omitempty"`
	EncryptedDocuments Item   `json:"encrypted_documents,omitempty"`

	LastUpdated string    `json:"last_updated"`
	CreatedAt   string    `json:"created_at"`
	Version     int       `json:"version"`
	StorageMode string    `json:"storage_mode,omitempty"`
	BlobRefs    []BlobRef `json:"blob_refs,omitempty"`
}

// Timestamp formats a time for the last_updated and created_at attributes.
// RFC 3339 UTC strings compare lexicographically in chronological order, which
// the latest-record resolution relies on.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

const appIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewAppID mints an application id of the form APP-<UTC timestamp>-<suffix>.
// The compact timestamp keeps ids sortable by creation time and the random
// suffix disambiguates ids minted within the same second.
func NewAppID(now time.Time) string {
	stamp := now.UTC().Format("20060102150405")
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// Timestamp granularity still bounds collisions.
		return fmt.Sprintf("APP-%s-%06d", stamp, now.UnixNano()%1000000)
	}
	for i, b := range buf {
		buf[i] = appIDAlphabet[int(b)%len(appIDAlphabet)]
	}
	return fmt.Sprintf("APP-%s-%s", stamp, string(buf))
}

// IsPlaceholderAppID reports whether an id was minted for a dependent role
// saving before the primary applicant created the application.
func IsPlaceholderAppID(id string) bool {
	return strings.HasPrefix(id, "APP-PENDING-")
}

// NewPlaceholderAppID mints an id for a dependent-role record that has no
// application to join yet.
func NewPlaceholderAppID(now time.Time) string {
	return "APP-PENDING-" + now.UTC().Format("20060102150405")
}
