package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SystemConfiguration is the single practice-wide settings row. It is created
// lazily on first update and never deleted.
type SystemConfiguration struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	WebhookURL            *string    `db:"webhook_url" json:"webhook_url"`
	EmailTemplateFirst    *string    `db:"email_template_first" json:"email_template_first"`
	EmailTemplateReminder *string    `db:"email_template_reminder" json:"email_template_reminder"`
	DentistName           *string    `db:"dentist_name" json:"dentist_name"`
	LogoURL               *string    `db:"logo_url" json:"logo_url"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// NullableString distinguishes "absent" from "present but null" in a partial
// update: omitted fields keep their value, explicit null clears the column.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(data, []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// ConfigurationUpdate carries the recognised settings fields of a merge
// update.
type ConfigurationUpdate struct {
	WebhookURL            NullableString `json:"webhook_url"`
	EmailTemplateFirst    NullableString `json:"email_template_first"`
	EmailTemplateReminder NullableString `json:"email_template_reminder"`
	DentistName           NullableString `json:"dentist_name"`
	LogoURL               NullableString `json:"logo_url"`
}

// Empty reports whether the update touches no field at all.
func (u *ConfigurationUpdate) Empty() bool {
	return !u.WebhookURL.Set && !u.EmailTemplateFirst.Set && !u.EmailTemplateReminder.Set &&
		!u.DentistName.Set && !u.LogoURL.Set
}
