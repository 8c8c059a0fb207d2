package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientStatusValid(t *testing.T) {
	for _, s := range []PatientStatus{
		PatientStatusSent, PatientStatusReminded,
		PatientStatusAppointment, PatientStatusNoAppointment,
	} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, PatientStatus("terminated").Valid())
	assert.False(t, PatientStatus("").Valid())
}

func TestPatientStatusArchival(t *testing.T) {
	assert.True(t, PatientStatusAppointment.Archival())
	assert.True(t, PatientStatusNoAppointment.Archival())
	assert.False(t, PatientStatusSent.Archival())
	assert.False(t, PatientStatusReminded.Archival())
}

func TestDisplayName(t *testing.T) {
	first := "Anna"
	rec := &PatientRecord{FirstName: &first, LastName: "Müller"}
	assert.Equal(t, "Anna Müller", rec.DisplayName())

	rec.FirstName = nil
	assert.Equal(t, "Müller", rec.DisplayName())

	blank := "   "
	rec.FirstName = &blank
	assert.Equal(t, "Müller", rec.DisplayName())
}

func TestCloneIsDeep(t *testing.T) {
	notes := "original"
	when := time.Now()
	rec := &PatientRecord{
		PatientID:    1,
		LastName:     "Weber",
		Notes:        &notes,
		DateReminded: &when,
	}

	clone := rec.Clone()
	require.NotNil(t, clone.Notes)
	*clone.Notes = "mutated"
	*clone.DateReminded = when.Add(time.Hour)

	assert.Equal(t, "original", *rec.Notes)
	assert.True(t, rec.DateReminded.Equal(when))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("anna@example.com"))
	assert.True(t, ValidEmail("a.b-c@praxis.de"))
	assert.False(t, ValidEmail("anna@example"))
	assert.False(t, ValidEmail("anna example@x.de"))
	assert.False(t, ValidEmail(""))
}
