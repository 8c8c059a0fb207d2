package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	"github.com/praxisboard/board-api/internal/storage"
	"github.com/praxisboard/board-api/pkg/logger"
)

// EmailSendLimit caps follow-up dispatches per record.
const EmailSendLimit = 2

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrEmailLimitReached = errors.New("email send limit reached")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrNotArchivalStatus = errors.New("status is not an archive outcome")
	ErrLastNameRequired  = errors.New("last name is required")
)

// CreateInput is a board-side create. PDFData, when present, is the raw file
// content to store before the row insert.
type CreateInput struct {
	FirstName string
	LastName  string
	Email     string
	Filename  string
	PDFData   []byte
}

// Board is the in-memory view of one owner's follow-up cards. Mutations apply
// optimistically and revert to a pre-mutation snapshot when the remote write
// fails; feed events overwrite cached records wholesale, so the last writer
// per id wins.
type Board struct {
	ownerID uuid.UUID

	mu      sync.RWMutex
	records []*model.PatientRecord
	tempID  int64

	repo      repository.PatientRepository
	store     storage.ObjectStore
	logger    *logger.Logger
	urlExpiry time.Duration
}

func New(
	ownerID uuid.UUID,
	repo repository.PatientRepository,
	store storage.ObjectStore,
	log *logger.Logger,
	urlExpiry time.Duration,
) *Board {
	if urlExpiry <= 0 {
		urlExpiry = time.Hour
	}
	return &Board{
		ownerID:   ownerID,
		repo:      repo,
		store:     store,
		logger:    log,
		urlExpiry: urlExpiry,
	}
}

// Load replaces the cache with the owner's active records, oldest first. On
// failure the cache is left empty.
func (b *Board) Load(ctx context.Context) ([]*model.PatientRecord, error) {
	records, err := b.repo.ListActive(ctx, b.ownerID)
	if err != nil {
		b.mu.Lock()
		b.records = nil
		b.mu.Unlock()
		return nil, fmt.Errorf("failed to load board: %w", err)
	}

	for _, rec := range records {
		b.attachURL(ctx, rec)
	}

	b.mu.Lock()
	b.records = records
	b.mu.Unlock()

	return b.snapshot(), nil
}

// Records returns a copy of the current cache.
func (b *Board) Records() []*model.PatientRecord {
	return b.snapshot()
}

// Create appends an optimistic placeholder with a negative temporary id,
// uploads the attachment, inserts the row, then swaps the placeholder for the
// stored record. Any failure removes the placeholder; a blob uploaded before a
// failed insert is deleted again.
func (b *Board) Create(ctx context.Context, in CreateInput) (*model.PatientRecord, error) {
	lastName := strings.TrimSpace(in.LastName)
	if lastName == "" {
		return nil, ErrLastNameRequired
	}

	placeholder := &model.PatientRecord{
		UserID:        b.ownerID,
		LastName:      lastName,
		Status:        model.PatientStatusSent,
		ArchiveStatus: model.ArchiveStatusNotArchived,
		DateCreated:   time.Now(),
	}
	if in.FirstName != "" {
		placeholder.FirstName = &in.FirstName
	}
	if in.Email != "" {
		placeholder.Email = &in.Email
	}

	b.mu.Lock()
	b.tempID--
	placeholder.PatientID = b.tempID
	tempID := b.tempID
	b.records = append(b.records, placeholder)
	b.mu.Unlock()

	stored, err := b.persistCreate(ctx, placeholder, in)
	if err != nil {
		b.removeByID(tempID)
		return nil, err
	}

	b.attachURL(ctx, stored)
	b.swapPlaceholder(tempID, stored)
	return stored.Clone(), nil
}

// swapPlaceholder installs the stored record where the optimistic placeholder
// sits. The feed can echo the insert before the swap runs; when the stored id
// is already cached the placeholder is dropped instead, so an id never appears
// twice.
func (b *Board) swapPlaceholder(tempID int64, stored *model.PatientRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tempIdx := b.indexOf(tempID)
	if b.indexOf(stored.PatientID) >= 0 {
		if tempIdx >= 0 {
			b.records = append(b.records[:tempIdx], b.records[tempIdx+1:]...)
		}
		return
	}
	if tempIdx >= 0 {
		b.records[tempIdx] = stored
	}
}

func (b *Board) persistCreate(ctx context.Context, placeholder *model.PatientRecord, in CreateInput) (*model.PatientRecord, error) {
	rec := placeholder.Clone()
	rec.PatientID = 0

	var uploadedKey string
	if len(in.PDFData) > 0 {
		key := storage.DocumentKey(b.ownerID, in.Filename)
		if err := b.store.Upload(ctx, key, "application/pdf", in.PDFData); err != nil {
			return nil, fmt.Errorf("failed to upload attachment: %w", err)
		}
		uploadedKey = key
		rec.PDFFilePath = &key
	}

	stored, err := b.repo.Insert(ctx, rec)
	if err != nil {
		if uploadedKey != "" {
			if rerr := b.store.Remove(ctx, uploadedKey); rerr != nil {
				b.logger.Error(rerr, "failed to clean up attachment after insert failure", "key", uploadedKey)
			}
		}
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	return stored, nil
}

// Move sets a new workflow status, stamping the reminder time on the first
// transition to reminded. Reverts to the pre-call snapshot on failure.
func (b *Board) Move(ctx context.Context, id int64, status model.PatientStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}

	snapshot, err := b.mutate(id, func(rec *model.PatientRecord) {
		rec.Status = status
		if status == model.PatientStatusReminded {
			now := time.Now()
			rec.DateReminded = &now
		}
	})
	if err != nil {
		return err
	}

	upd := &model.PatientUpdate{Status: &status}
	if status == model.PatientStatusReminded {
		now := time.Now()
		upd.DateReminded = &now
	}

	return b.commit(ctx, id, snapshot, upd)
}

// Archive moves a record into an archive bin: status, archive flag, and the
// archival timestamp change together or not at all.
func (b *Board) Archive(ctx context.Context, id int64, outcome model.PatientStatus) error {
	if !outcome.Archival() {
		return ErrNotArchivalStatus
	}

	now := time.Now()
	archived := model.ArchiveStatusArchived

	snapshot, err := b.mutate(id, func(rec *model.PatientRecord) {
		rec.Status = outcome
		rec.ArchiveStatus = archived
		rec.DateArchived = &now
	})
	if err != nil {
		return err
	}

	upd := &model.PatientUpdate{
		Status:        &outcome,
		ArchiveStatus: &archived,
		DateArchived:  &now,
	}
	return b.commit(ctx, id, snapshot, upd)
}

// UpdateNotes stores trimmed note text; an empty result clears the field.
func (b *Board) UpdateNotes(ctx context.Context, id int64, text string) error {
	trimmed := strings.TrimSpace(text)

	snapshot, err := b.mutate(id, func(rec *model.PatientRecord) {
		if trimmed == "" {
			rec.Notes = nil
		} else {
			rec.Notes = &trimmed
		}
	})
	if err != nil {
		return err
	}

	upd := &model.PatientUpdate{}
	if trimmed == "" {
		upd.ClearNotes = true
	} else {
		upd.Notes = &trimmed
	}
	return b.commit(ctx, id, snapshot, upd)
}

// IncrementEmailCount bumps the dispatch counter and stamps the send time.
// Refuses before any mutation once the cap is reached.
func (b *Board) IncrementEmailCount(ctx context.Context, id int64) error {
	b.mu.RLock()
	idx := b.indexOf(id)
	if idx < 0 {
		b.mu.RUnlock()
		return ErrRecordNotFound
	}
	count := b.records[idx].EmailSentCount
	b.mu.RUnlock()

	if count >= EmailSendLimit {
		return ErrEmailLimitReached
	}

	now := time.Now()
	newCount := count + 1

	snapshot, err := b.mutate(id, func(rec *model.PatientRecord) {
		rec.EmailSentCount = newCount
		rec.EmailSentAt = &now
	})
	if err != nil {
		return err
	}

	upd := &model.PatientUpdate{
		EmailSentCount: &newCount,
		EmailSentAt:    &now,
	}
	return b.commit(ctx, id, snapshot, upd)
}

// DeleteArchived drops every archived-outcome record: blobs first
// (best-effort), then the rows in one scoped delete. A failed row delete
// restores the removed records to the cache.
func (b *Board) DeleteArchived(ctx context.Context) (int64, error) {
	b.mu.Lock()
	var kept, removed []*model.PatientRecord
	for _, rec := range b.records {
		if rec.Status.Archival() {
			removed = append(removed, rec)
		} else {
			kept = append(kept, rec)
		}
	}
	b.records = kept
	b.mu.Unlock()

	if len(removed) == 0 {
		return 0, nil
	}

	for _, rec := range removed {
		if rec.PDFFilePath == nil {
			continue
		}
		if err := b.store.Remove(ctx, *rec.PDFFilePath); err != nil {
			b.logger.Error(err, "failed to remove archived attachment", "key", *rec.PDFFilePath)
		}
	}

	count, err := b.repo.DeleteArchived(ctx, b.ownerID)
	if err != nil {
		b.mu.Lock()
		b.records = append(b.records, removed...)
		b.mu.Unlock()
		return 0, fmt.Errorf("failed to delete archived records: %w", err)
	}
	return count, nil
}

// ArchiveCounts reports how many of the owner's records sit in each archive
// bin.
func (b *Board) ArchiveCounts(ctx context.Context) (map[model.PatientStatus]int, error) {
	counts := make(map[model.PatientStatus]int, len(model.ArchiveStatuses))
	for _, status := range model.ArchiveStatuses {
		n, err := b.repo.CountArchived(ctx, b.ownerID, status)
		if err != nil {
			return nil, fmt.Errorf("failed to count archived records: %w", err)
		}
		counts[status] = n
	}
	return counts, nil
}

// Apply reconciles one feed event into the cache. Inserts overwrite an
// existing id or append; updates overwrite wholesale; deletes remove.
func (b *Board) Apply(ctx context.Context, event *model.PatientEvent) {
	switch event.Type {
	case model.EventPatientInsert, model.EventPatientUpdate:
		if event.Record == nil {
			return
		}
		rec := event.Record.Clone()
		b.attachURL(ctx, rec)

		b.mu.Lock()
		if idx := b.indexOf(rec.PatientID); idx >= 0 {
			b.records[idx] = rec
		} else {
			b.records = append(b.records, rec)
		}
		b.mu.Unlock()

	case model.EventPatientDelete:
		b.removeByID(event.PatientID)
	}
}

// Get returns a copy of one cached record.
func (b *Board) Get(id int64) (*model.PatientRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if idx := b.indexOf(id); idx >= 0 {
		return b.records[idx].Clone(), nil
	}
	return nil, ErrRecordNotFound
}

// mutate snapshots a record, applies fn in place, and returns the snapshot
// for a later revert.
func (b *Board) mutate(id int64, fn func(*model.PatientRecord)) (*model.PatientRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexOf(id)
	if idx < 0 {
		return nil, ErrRecordNotFound
	}

	snapshot := b.records[idx].Clone()
	fn(b.records[idx])
	return snapshot, nil
}

// commit pushes the partial update to the store. On success the returned row
// overwrites the cache entry; on failure the pre-mutation snapshot is
// restored exactly.
func (b *Board) commit(ctx context.Context, id int64, snapshot *model.PatientRecord, upd *model.PatientUpdate) error {
	stored, err := b.repo.Update(ctx, id, b.ownerID, upd)
	if err != nil {
		b.replaceByID(id, snapshot)
		return fmt.Errorf("failed to update record %d: %w", id, err)
	}

	b.attachURL(ctx, stored)
	b.replaceByID(id, stored)
	return nil
}

func (b *Board) attachURL(ctx context.Context, rec *model.PatientRecord) {
	if rec.PDFFilePath == nil || *rec.PDFFilePath == "" {
		return
	}
	url, err := b.store.SignedURL(ctx, *rec.PDFFilePath, b.urlExpiry)
	if err != nil {
		b.logger.Error(err, "failed to sign attachment url", "key", *rec.PDFFilePath)
		return
	}
	rec.PDFURL = url
}

func (b *Board) snapshot() []*model.PatientRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*model.PatientRecord, len(b.records))
	for i, rec := range b.records {
		out[i] = rec.Clone()
	}
	return out
}

// indexOf requires b.mu held.
func (b *Board) indexOf(id int64) int {
	for i, rec := range b.records {
		if rec.PatientID == id {
			return i
		}
	}
	return -1
}

func (b *Board) removeByID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.indexOf(id); idx >= 0 {
		b.records = append(b.records[:idx], b.records[idx+1:]...)
	}
}

func (b *Board) replaceByID(id int64, rec *model.PatientRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.indexOf(id); idx >= 0 {
		b.records[idx] = rec
	}
}

