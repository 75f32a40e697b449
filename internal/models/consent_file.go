package models

// ConsentFile represents the FS_CONSENT_FILE table
type ConsentFile struct {
	ConsentID   string `db:"CONSENT_ID" json:"consentId"`
	ConsentFile []byte `db:"CONSENT_FILE" json:"-"`
	OrgID       string `db:"ORG_ID" json:"orgId"`
}

// ConsentFileResponse reports a stored upload
type ConsentFileResponse struct {
	ConsentID     string `json:"consentId"`
	FileSize      int    `json:"fileSize"`
	CurrentStatus string `json:"currentStatus"`
}
