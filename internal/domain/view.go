package domain

// ApplicationView is the assembled cross-table read model for one rental
// application. It is always returned, even when some sections could not be
// fetched; Missing names the sections that degraded.
type ApplicationView struct {
	AppID       string `json:"appid"`
	Zone        string `json:"zoneinfo"`
	Status      string `json:"status,omitempty"`
	CurrentStep int    `json:"current_step"`
	LastUpdated string `json:"last_updated"`

	Application  Item                `json:"application,omitempty"`
	Applicant    *ParticipantRecord  `json:"applicant,omitempty"`
	CoApplicants []ParticipantRecord `json:"coapplicants,omitempty"`
	Guarantors   []ParticipantRecord `json:"guarantors,omitempty"`
	Occupants    []Item              `json:"occupants,omitempty"`

	// PendingInvites lists additional people named on the application form
	// who have not saved a record of their own yet.
	PendingInvites []PendingInvite `json:"pending_invites,omitempty"`

	// Missing names sections that failed to load. A non-empty slice means
	// the view is partial, not that the application is absent.
	Missing []string `json:"missing,omitempty"`
}

// PendingInvite is a participant the primary applicant named but who has no
// stored record yet.
type PendingInvite struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DraftMetadata is the lightweight projection used by draft listings. It
// deliberately excludes form payloads and growth fields.
type DraftMetadata struct {
	AppID       string `json:"appid"`
	Zone        string `json:"zoneinfo"`
	Role        string `json:"role"`
	Status      string `json:"status,omitempty"`
	CurrentStep int    `json:"current_step"`
	LastUpdated string `json:"last_updated"`
	StorageMode string `json:"storage_mode,omitempty"`
}
