package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/storage"
	"github.com/praxisboard/board-api/pkg/logger"
)

type fakeRepo struct {
	records    []*model.PatientRecord
	nextID     int64
	insertErr  error
	updateErr  error
	deleteErr  error
	listErr    error
	updates    []*model.PatientUpdate
	deleteCall int
	insertHook func(stored *model.PatientRecord)
}

func (r *fakeRepo) ListActive(_ context.Context, ownerID uuid.UUID) ([]*model.PatientRecord, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.PatientRecord
	for _, rec := range r.records {
		if rec.UserID == ownerID && rec.ArchiveStatus == model.ArchiveStatusNotArchived {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepo) Insert(_ context.Context, rec *model.PatientRecord) (*model.PatientRecord, error) {
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	r.nextID++
	stored := rec.Clone()
	stored.PatientID = r.nextID
	r.records = append(r.records, stored)
	if r.insertHook != nil {
		r.insertHook(stored.Clone())
	}
	return stored.Clone(), nil
}

func (r *fakeRepo) Update(_ context.Context, id int64, ownerID uuid.UUID, upd *model.PatientUpdate) (*model.PatientRecord, error) {
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	r.updates = append(r.updates, upd)
	for _, rec := range r.records {
		if rec.PatientID != id || rec.UserID != ownerID {
			continue
		}
		if upd.Status != nil {
			rec.Status = *upd.Status
		}
		if upd.ArchiveStatus != nil {
			rec.ArchiveStatus = *upd.ArchiveStatus
		}
		if upd.ClearNotes {
			rec.Notes = nil
		} else if upd.Notes != nil {
			rec.Notes = upd.Notes
		}
		if upd.EmailSentCount != nil {
			rec.EmailSentCount = *upd.EmailSentCount
		}
		if upd.EmailSentAt != nil {
			rec.EmailSentAt = upd.EmailSentAt
		}
		if upd.DateReminded != nil {
			rec.DateReminded = upd.DateReminded
		}
		if upd.DateArchived != nil {
			rec.DateArchived = upd.DateArchived
		}
		return rec.Clone(), nil
	}
	return nil, errors.New("no row")
}

func (r *fakeRepo) DeleteArchived(_ context.Context, ownerID uuid.UUID) (int64, error) {
	r.deleteCall++
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	var kept []*model.PatientRecord
	var n int64
	for _, rec := range r.records {
		if rec.UserID == ownerID && rec.ArchiveStatus == model.ArchiveStatusArchived {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return n, nil
}

func (r *fakeRepo) CountArchived(_ context.Context, ownerID uuid.UUID, status model.PatientStatus) (int, error) {
	n := 0
	for _, rec := range r.records {
		if rec.UserID == ownerID && rec.ArchiveStatus == model.ArchiveStatusArchived && rec.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeStore struct {
	objects   map[string][]byte
	uploadErr error
	removed   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Upload(_ context.Context, key, _ string, data []byte) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStore) Download(_ context.Context, key string) ([]byte, string, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, "", errors.New("no such object")
	}
	return data, "application/pdf", nil
}

func (s *fakeStore) Remove(_ context.Context, key string) error {
	s.removed = append(s.removed, key)
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) List(_ context.Context, _ string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (s *fakeStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func (s *fakeStore) PublicURL(key string) string {
	return "https://public.example/" + key
}

func testLogger() *logger.Logger {
	return logger.NewLogger(nil)
}

func seedRecord(owner uuid.UUID, id int64) *model.PatientRecord {
	return &model.PatientRecord{
		PatientID:     id,
		UserID:        owner,
		LastName:      "Müller",
		Status:        model.PatientStatusSent,
		ArchiveStatus: model.ArchiveStatusNotArchived,
		DateCreated:   time.Now().Add(-time.Hour),
	}
}

func TestLoadOrdersAndAttachesURLs(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{}
	key := "some/key.pdf"
	rec := seedRecord(owner, 1)
	rec.PDFFilePath = &key
	repo.records = []*model.PatientRecord{rec}

	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	records, err := b.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://signed.example/some/key.pdf", records[0].PDFURL)
}

func TestCreateReplacesPlaceholderWithStoredRecord(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)

	rec, err := b.Create(context.Background(), CreateInput{FirstName: "Anna", LastName: "Schmidt"})
	require.NoError(t, err)
	assert.Positive(t, rec.PatientID)
	assert.Equal(t, model.PatientStatusSent, rec.Status)

	records := b.Records()
	require.Len(t, records, 1)
	assert.Equal(t, rec.PatientID, records[0].PatientID)
}

func TestCreateCleansUpAttachmentOnInsertFailure(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{insertErr: errors.New("insert refused")}
	store := newFakeStore()
	b := New(owner, repo, store, testLogger(), time.Hour)

	_, err := b.Create(context.Background(), CreateInput{
		LastName: "Weber",
		Filename: "estimate.pdf",
		PDFData:  []byte("%PDF-1.4"),
	})
	require.Error(t, err)

	// Placeholder is gone and the uploaded blob was deleted again.
	assert.Empty(t, b.Records())
	assert.Empty(t, store.objects)
	require.Len(t, store.removed, 1)
}

func TestCreateRequiresLastName(t *testing.T) {
	b := New(uuid.New(), &fakeRepo{}, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Create(context.Background(), CreateInput{LastName: "   "})
	assert.ErrorIs(t, err, ErrLastNameRequired)
	assert.Empty(t, b.Records())
}

func TestMoveRevertsExactlyOnFailure(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	before, err := b.Get(1)
	require.NoError(t, err)

	repo.updateErr = errors.New("store down")
	err = b.Move(context.Background(), 1, model.PatientStatusReminded)
	require.Error(t, err)

	after, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.DateReminded, after.DateReminded)
}

func TestMoveToRemindedStampsReminderTime(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Move(context.Background(), 1, model.PatientStatusReminded))

	rec, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusReminded, rec.Status)
	require.NotNil(t, rec.DateReminded)
}

func TestArchiveSetsStatusFlagAndTimestampTogether(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Archive(context.Background(), 1, model.PatientStatusAppointment))

	rec, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusAppointment, rec.Status)
	assert.Equal(t, model.ArchiveStatusArchived, rec.ArchiveStatus)
	require.NotNil(t, rec.DateArchived)
}

func TestArchiveRejectsNonArchivalStatus(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	err = b.Archive(context.Background(), 1, model.PatientStatusReminded)
	assert.ErrorIs(t, err, ErrNotArchivalStatus)
	assert.Empty(t, repo.updates)
}

func TestArchiveRevertsBothFieldsOnFailure(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	repo.updateErr = errors.New("store down")
	err = b.Archive(context.Background(), 1, model.PatientStatusNoAppointment)
	require.Error(t, err)

	rec, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusSent, rec.Status)
	assert.Equal(t, model.ArchiveStatusNotArchived, rec.ArchiveStatus)
	assert.Nil(t, rec.DateArchived)
}

func TestUpdateNotesTrimsAndClearsEmpty(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.UpdateNotes(context.Background(), 1, "  called twice  "))
	rec, err := b.Get(1)
	require.NoError(t, err)
	require.NotNil(t, rec.Notes)
	assert.Equal(t, "called twice", *rec.Notes)

	require.NoError(t, b.UpdateNotes(context.Background(), 1, "   "))
	rec, err = b.Get(1)
	require.NoError(t, err)
	assert.Nil(t, rec.Notes)

	require.Len(t, repo.updates, 2)
	assert.True(t, repo.updates[1].ClearNotes)
}

func TestIncrementEmailCountRefusesAtCap(t *testing.T) {
	owner := uuid.New()
	rec := seedRecord(owner, 1)
	rec.EmailSentCount = EmailSendLimit
	repo := &fakeRepo{records: []*model.PatientRecord{rec}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	err = b.IncrementEmailCount(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEmailLimitReached)
	// Refused before any remote mutation.
	assert.Empty(t, repo.updates)

	got, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, EmailSendLimit, got.EmailSentCount)
	assert.Nil(t, got.EmailSentAt)
}

func TestIncrementEmailCountRevertsOnFailure(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	repo.updateErr = errors.New("store down")
	err = b.IncrementEmailCount(context.Background(), 1)
	require.Error(t, err)

	rec, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.EmailSentCount)
	assert.Nil(t, rec.EmailSentAt)
}

func TestDeleteArchivedRemovesBlobsAndRows(t *testing.T) {
	owner := uuid.New()
	active := seedRecord(owner, 1)
	archived := seedRecord(owner, 2)
	archived.Status = model.PatientStatusAppointment
	archived.ArchiveStatus = model.ArchiveStatusArchived
	key := owner.String() + "/123-old.pdf"
	archived.PDFFilePath = &key

	repo := &fakeRepo{records: []*model.PatientRecord{active, archived}}
	store := newFakeStore()
	store.objects[key] = []byte("%PDF")

	b := New(owner, repo, store, testLogger(), time.Hour)
	// Archived records stay cached until deleted, so seed the cache directly.
	b.records = []*model.PatientRecord{active.Clone(), archived.Clone()}

	count, err := b.DeleteArchived(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, []string{key}, store.removed)

	records := b.Records()
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].PatientID)
}

func TestDeleteArchivedRestoresCacheOnRowDeleteFailure(t *testing.T) {
	owner := uuid.New()
	archived := seedRecord(owner, 2)
	archived.Status = model.PatientStatusNoAppointment
	archived.ArchiveStatus = model.ArchiveStatusArchived

	repo := &fakeRepo{deleteErr: errors.New("store down")}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	b.records = []*model.PatientRecord{archived.Clone()}

	_, err := b.DeleteArchived(context.Background())
	require.Error(t, err)
	assert.Len(t, b.Records(), 1)
}

func TestFeedUpdateOverwritesWholesale(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	// Leave a stale optimistic stub behind a failed move.
	repo.updateErr = errors.New("store down")
	_ = b.Move(context.Background(), 1, model.PatientStatusReminded)

	pushed := seedRecord(owner, 1)
	pushed.Status = model.PatientStatusReminded
	now := time.Now()
	pushed.DateReminded = &now
	notes := "from another session"
	pushed.Notes = &notes

	b.Apply(context.Background(), &model.PatientEvent{
		Type:      model.EventPatientUpdate,
		PatientID: 1,
		OwnerID:   owner,
		Record:    pushed,
	})

	rec, err := b.Get(1)
	require.NoError(t, err)
	assert.Equal(t, pushed.Status, rec.Status)
	require.NotNil(t, rec.Notes)
	assert.Equal(t, notes, *rec.Notes)
	assert.Equal(t, pushed.DateReminded.Unix(), rec.DateReminded.Unix())
}

func TestCreateDropsPlaceholderWhenFeedDeliversFirst(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)

	// Echo the insert through the feed before Create swaps its placeholder.
	repo.insertHook = func(stored *model.PatientRecord) {
		b.Apply(context.Background(), &model.PatientEvent{
			Type:      model.EventPatientInsert,
			PatientID: stored.PatientID,
			OwnerID:   owner,
			Record:    stored,
		})
	}

	rec, err := b.Create(context.Background(), CreateInput{LastName: "Weber"})
	require.NoError(t, err)

	records := b.Records()
	require.Len(t, records, 1)
	assert.Equal(t, rec.PatientID, records[0].PatientID)
}

func TestArchiveCountsPerBin(t *testing.T) {
	owner := uuid.New()
	appointment := seedRecord(owner, 1)
	appointment.Status = model.PatientStatusAppointment
	appointment.ArchiveStatus = model.ArchiveStatusArchived
	other := seedRecord(uuid.New(), 2)
	other.Status = model.PatientStatusAppointment
	other.ArchiveStatus = model.ArchiveStatusArchived

	repo := &fakeRepo{records: []*model.PatientRecord{appointment, other}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)

	counts, err := b.ArchiveCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.PatientStatusAppointment])
	assert.Equal(t, 0, counts[model.PatientStatusNoAppointment])
}

func TestFeedInsertIsIdempotent(t *testing.T) {
	owner := uuid.New()
	b := New(owner, &fakeRepo{}, newFakeStore(), testLogger(), time.Hour)

	rec := seedRecord(owner, 7)
	event := &model.PatientEvent{
		Type:      model.EventPatientInsert,
		PatientID: 7,
		OwnerID:   owner,
		Record:    rec,
	}
	b.Apply(context.Background(), event)
	b.Apply(context.Background(), event)

	assert.Len(t, b.Records(), 1)
}

func TestFeedDeleteRemovesRecord(t *testing.T) {
	owner := uuid.New()
	repo := &fakeRepo{records: []*model.PatientRecord{seedRecord(owner, 1)}}
	b := New(owner, repo, newFakeStore(), testLogger(), time.Hour)
	_, err := b.Load(context.Background())
	require.NoError(t, err)

	b.Apply(context.Background(), &model.PatientEvent{
		Type:      model.EventPatientDelete,
		PatientID: 1,
		OwnerID:   owner,
	})
	assert.Empty(t, b.Records())
}

func TestManagerReturnsSameBoardPerOwner(t *testing.T) {
	m := NewManager(&fakeRepo{}, newFakeStore(), nil, testLogger(), "patients", time.Hour)
	owner := uuid.New()
	assert.Same(t, m.Get(owner), m.Get(owner))
	assert.NotSame(t, m.Get(owner), m.Get(uuid.New()))
}
