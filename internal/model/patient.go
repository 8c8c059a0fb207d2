package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusSent          PatientStatus = "sent"
	PatientStatusReminded      PatientStatus = "reminded"
	PatientStatusAppointment   PatientStatus = "appointment"
	PatientStatusNoAppointment PatientStatus = "no_appointment"
)

type ArchiveStatus string

const (
	ArchiveStatusArchived    ArchiveStatus = "archived"
	ArchiveStatusNotArchived ArchiveStatus = "not_archived"
)

// ArchiveStatuses are the terminal workflow outcomes a card can be dropped
// into. Only these values may be combined with ArchiveStatusArchived.
var ArchiveStatuses = []PatientStatus{
	PatientStatusAppointment,
	PatientStatusNoAppointment,
}

func (s PatientStatus) Valid() bool {
	switch s {
	case PatientStatusSent, PatientStatusReminded, PatientStatusAppointment, PatientStatusNoAppointment:
		return true
	}
	return false
}

func (s PatientStatus) Archival() bool {
	return s == PatientStatusAppointment || s == PatientStatusNoAppointment
}

// PatientRecord is a cost-estimate follow-up card. IDs are assigned by the
// database; locally created placeholders carry a negative temporary ID until
// the insert round-trips.
type PatientRecord struct {
	PatientID      int64         `db:"patient_id" json:"patient_id"`
	UserID         uuid.UUID     `db:"user_id" json:"user_id"`
	FirstName      *string       `db:"first_name" json:"first_name,omitempty"`
	LastName       string        `db:"last_name" json:"last_name"`
	Email          *string       `db:"email" json:"email,omitempty"`
	Status         PatientStatus `db:"status" json:"status"`
	ArchiveStatus  ArchiveStatus `db:"archive_status" json:"archive_status"`
	PDFFilePath    *string       `db:"pdf_file_path" json:"pdf_file_path,omitempty"`
	PDFURL         string        `db:"-" json:"pdf_url,omitempty"`
	Notes          *string       `db:"notes" json:"notes,omitempty"`
	EmailSentCount int           `db:"email_sent_count" json:"email_sent_count"`
	EmailSentAt    *time.Time    `db:"email_sent_at" json:"email_sent_at,omitempty"`
	DateCreated    time.Time     `db:"date_created" json:"date_created"`
	DateReminded   *time.Time    `db:"date_reminded" json:"date_reminded,omitempty"`
	DateArchived   *time.Time    `db:"date_archived" json:"date_archived,omitempty"`
}

// DisplayName joins first and last name, dropping the empty part.
func (p *PatientRecord) DisplayName() string {
	if p.FirstName == nil || strings.TrimSpace(*p.FirstName) == "" {
		return p.LastName
	}
	return strings.TrimSpace(*p.FirstName) + " " + p.LastName
}

// Clone returns a deep copy, used for pre-mutation snapshots.
func (p *PatientRecord) Clone() *PatientRecord {
	c := *p
	c.FirstName = clonePtr(p.FirstName)
	c.Email = clonePtr(p.Email)
	c.PDFFilePath = clonePtr(p.PDFFilePath)
	c.Notes = clonePtr(p.Notes)
	c.EmailSentAt = clonePtr(p.EmailSentAt)
	c.DateReminded = clonePtr(p.DateReminded)
	c.DateArchived = clonePtr(p.DateArchived)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// PatientUpdate is a partial update scoped by patient and owner. Nil fields
// are left untouched; ClearNotes writes NULL explicitly.
type PatientUpdate struct {
	Status         *PatientStatus
	ArchiveStatus  *ArchiveStatus
	Notes          *string
	ClearNotes     bool
	EmailSentCount *int
	EmailSentAt    *time.Time
	DateReminded   *time.Time
	DateArchived   *time.Time
}

type CreatePatientRequest struct {
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name" binding:"required"`
	Email     string     `json:"email" binding:"omitempty,email"`
	PDF       *PDFUpload `json:"pdf,omitempty"`
}

type PDFUpload struct {
	Filename string `json:"filename" binding:"required"`
	Data     string `json:"data" binding:"required"` // base64, optional data: URL prefix
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail mirrors the board's lenient address check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
