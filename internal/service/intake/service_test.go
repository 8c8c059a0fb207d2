package intake

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	"github.com/praxisboard/board-api/internal/storage"
	apperrors "github.com/praxisboard/board-api/pkg/errors"
	"github.com/praxisboard/board-api/pkg/logger"
)

type fakePatientRepo struct {
	inserted  []*model.PatientRecord
	insertErr error
	nextID    int64
}

func (r *fakePatientRepo) ListActive(context.Context, uuid.UUID) ([]*model.PatientRecord, error) {
	return nil, nil
}

func (r *fakePatientRepo) Insert(_ context.Context, rec *model.PatientRecord) (*model.PatientRecord, error) {
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	r.nextID++
	stored := rec.Clone()
	stored.PatientID = r.nextID
	r.inserted = append(r.inserted, stored)
	return stored.Clone(), nil
}

func (r *fakePatientRepo) Update(context.Context, int64, uuid.UUID, *model.PatientUpdate) (*model.PatientRecord, error) {
	return nil, errors.New("not implemented")
}

func (r *fakePatientRepo) DeleteArchived(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

func (r *fakePatientRepo) CountArchived(context.Context, uuid.UUID, model.PatientStatus) (int, error) {
	return 0, nil
}

type fakeRoleRepo struct {
	adminID  uuid.UUID
	noAdmins bool
}

func (r *fakeRoleRepo) FirstAdminUserID(context.Context) (uuid.UUID, error) {
	if r.noAdmins {
		return uuid.Nil, repository.ErrNoAdminAccount
	}
	return r.adminID, nil
}

func (r *fakeRoleRepo) ListForUser(context.Context, uuid.UUID) ([]*model.UserRole, error) {
	return nil, nil
}

func (r *fakeRoleRepo) ListAll(context.Context) ([]*model.UserRole, error) {
	return nil, nil
}

func (r *fakeRoleRepo) Assign(context.Context, uuid.UUID, string) error { return nil }

func (r *fakeRoleRepo) Remove(context.Context, uuid.UUID, string) error { return nil }

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

func (s *fakeStore) Download(context.Context, string) ([]byte, string, error) {
	return nil, "", errors.New("not implemented")
}

func (s *fakeStore) Remove(_ context.Context, key string) error {
	s.removed = append(s.removed, key)
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (s *fakeStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func (s *fakeStore) PublicURL(key string) string {
	return "https://public.example/" + key
}

func newTestService(patients *fakePatientRepo, roles *fakeRoleRepo, store *fakeStore) *Service {
	return NewService(patients, roles, store, logger.NewLogger(nil), MaxPDFSize, time.Hour)
}

func pdfPayload(t *testing.T, size int) *PDFPayload {
	t.Helper()
	return &PDFPayload{
		Filename: "estimate.pdf",
		Data:     base64.StdEncoding.EncodeToString(make([]byte, size)),
	}
}

func TestCreatePatientAttributesToFirstAdmin(t *testing.T) {
	adminID := uuid.New()
	patients := &fakePatientRepo{}
	svc := newTestService(patients, &fakeRoleRepo{adminID: adminID}, newFakeStore())

	result, err := svc.CreatePatient(context.Background(), &Request{
		FirstName: "Anna",
		LastName:  "Müller",
		Email:     "anna@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "Anna Müller", result.Name)
	assert.Equal(t, model.PatientStatusSent, result.Status)
	require.Len(t, patients.inserted, 1)
	assert.Equal(t, adminID, patients.inserted[0].UserID)
}

func TestCreatePatientRejectsMissingLastName(t *testing.T) {
	patients := &fakePatientRepo{}
	store := newFakeStore()
	svc := newTestService(patients, &fakeRoleRepo{adminID: uuid.New()}, store)

	_, err := svc.CreatePatient(context.Background(), &Request{LastName: "  "})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
	assert.Empty(t, patients.inserted)
	assert.Empty(t, store.objects)
}

func TestCreatePatientRejectsInvalidEmail(t *testing.T) {
	svc := newTestService(&fakePatientRepo{}, &fakeRoleRepo{adminID: uuid.New()}, newFakeStore())

	_, err := svc.CreatePatient(context.Background(), &Request{
		LastName: "Weber",
		Email:    "not-an-address",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
}

func TestCreatePatientRejectsOversizedPDFBeforeUpload(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(&fakePatientRepo{}, &fakeRoleRepo{adminID: uuid.New()}, store)

	_, err := svc.CreatePatient(context.Background(), &Request{
		LastName: "Müller",
		PDF:      pdfPayload(t, 11*1024*1024),
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
	assert.Empty(t, store.objects)
}

func TestCreatePatientRejectsNonPDFFilename(t *testing.T) {
	svc := newTestService(&fakePatientRepo{}, &fakeRoleRepo{adminID: uuid.New()}, newFakeStore())

	_, err := svc.CreatePatient(context.Background(), &Request{
		LastName: "Weber",
		PDF: &PDFPayload{
			Filename: "estimate.docx",
			Data:     base64.StdEncoding.EncodeToString([]byte("hi")),
		},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
}

func TestCreatePatientCompensatesBlobOnInsertFailure(t *testing.T) {
	patients := &fakePatientRepo{insertErr: errors.New("insert refused")}
	store := newFakeStore()
	svc := newTestService(patients, &fakeRoleRepo{adminID: uuid.New()}, store)

	_, err := svc.CreatePatient(context.Background(), &Request{
		LastName: "Müller",
		PDF:      pdfPayload(t, 64),
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusOf(err))

	// The uploaded blob was deleted again.
	assert.Empty(t, store.objects)
	assert.Len(t, store.removed, 1)
}

func TestCreatePatientFailsWithoutAdminAccount(t *testing.T) {
	svc := newTestService(&fakePatientRepo{}, &fakeRoleRepo{noAdmins: true}, newFakeStore())

	_, err := svc.CreatePatient(context.Background(), &Request{LastName: "Weber"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusOf(err))
}

func TestCreatePatientSignsAttachmentURL(t *testing.T) {
	adminID := uuid.New()
	store := newFakeStore()
	svc := newTestService(&fakePatientRepo{}, &fakeRoleRepo{adminID: adminID}, store)

	result, err := svc.CreatePatient(context.Background(), &Request{
		LastName: "Müller",
		PDF:      pdfPayload(t, 64),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.PDFURL, "https://signed.example/"+adminID.String()+"/"))
}

func TestDecodePDFStripsDataURLPrefix(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	data, err := DecodePDF("a.pdf", "data:application/pdf;base64,"+encoded, MaxPDFSize)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
}
