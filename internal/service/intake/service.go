package intake

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	"github.com/praxisboard/board-api/internal/storage"
	apperrors "github.com/praxisboard/board-api/pkg/errors"
	"github.com/praxisboard/board-api/pkg/logger"
)

// MaxPDFSize is the decoded attachment ceiling.
const MaxPDFSize = 10 * 1024 * 1024

// Request is the out-of-band create contract for external automations.
type Request struct {
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Status    string      `json:"status"`
	PDF       *PDFPayload `json:"pdf"`
}

type PDFPayload struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// Result is the success payload echoed back to the caller.
type Result struct {
	PatientID   int64               `json:"patient_id"`
	Name        string              `json:"name"`
	Email       string              `json:"email,omitempty"`
	Status      model.PatientStatus `json:"status"`
	PDFURL      string              `json:"pdf_url,omitempty"`
	DateCreated time.Time           `json:"date_created"`
}

type Service struct {
	patients   repository.PatientRepository
	roles      repository.RoleRepository
	store      storage.ObjectStore
	logger     *logger.Logger
	maxPDFSize int64
	urlExpiry  time.Duration
}

func NewService(
	patients repository.PatientRepository,
	roles repository.RoleRepository,
	store storage.ObjectStore,
	log *logger.Logger,
	maxPDFSize int64,
	urlExpiry time.Duration,
) *Service {
	if maxPDFSize <= 0 {
		maxPDFSize = MaxPDFSize
	}
	if urlExpiry <= 0 {
		urlExpiry = time.Hour
	}
	return &Service{
		patients:   patients,
		roles:      roles,
		store:      store,
		logger:     log,
		maxPDFSize: maxPDFSize,
		urlExpiry:  urlExpiry,
	}
}

// CreatePatient validates the payload, stores the attachment, and inserts the
// record attributed to the first admin account. A row-insert failure after a
// successful upload deletes the blob again before reporting the failure.
func (s *Service) CreatePatient(ctx context.Context, req *Request) (*Result, error) {
	lastName := strings.TrimSpace(req.LastName)
	if lastName == "" {
		return nil, apperrors.BadRequest("lastName is required", nil)
	}

	email := strings.TrimSpace(req.Email)
	if email != "" && !model.ValidEmail(email) {
		return nil, apperrors.BadRequest("invalid email address", nil)
	}

	status := model.PatientStatusSent
	if req.Status != "" {
		status = model.PatientStatus(req.Status)
		if !status.Valid() {
			return nil, apperrors.BadRequest(fmt.Sprintf("invalid status %q", req.Status), nil)
		}
	}

	var pdfData []byte
	if req.PDF != nil {
		var err error
		pdfData, err = DecodePDF(req.PDF.Filename, req.PDF.Data, s.maxPDFSize)
		if err != nil {
			return nil, err
		}
	}

	ownerID, err := s.roles.FirstAdminUserID(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNoAdminAccount) {
			return nil, apperrors.Internal("no admin account configured", err)
		}
		return nil, apperrors.Internal("failed to resolve owner account", err)
	}

	rec := &model.PatientRecord{
		UserID:        ownerID,
		LastName:      lastName,
		Status:        status,
		ArchiveStatus: model.ArchiveStatusNotArchived,
		DateCreated:   time.Now(),
	}
	if firstName := strings.TrimSpace(req.FirstName); firstName != "" {
		rec.FirstName = &firstName
	}
	if email != "" {
		rec.Email = &email
	}

	var uploadedKey string
	if pdfData != nil {
		key := storage.DocumentKey(ownerID, req.PDF.Filename)
		if err := s.store.Upload(ctx, key, "application/pdf", pdfData); err != nil {
			return nil, apperrors.Internal("failed to store attachment", err)
		}
		uploadedKey = key
		rec.PDFFilePath = &key
	}

	stored, err := s.patients.Insert(ctx, rec)
	if err != nil {
		if uploadedKey != "" {
			if rerr := s.store.Remove(ctx, uploadedKey); rerr != nil {
				s.logger.Error(rerr, "failed to clean up attachment after insert failure", "key", uploadedKey)
			}
		}
		return nil, apperrors.Internal("failed to create record", err)
	}

	result := &Result{
		PatientID:   stored.PatientID,
		Name:        stored.DisplayName(),
		Status:      stored.Status,
		DateCreated: stored.DateCreated,
	}
	if stored.Email != nil {
		result.Email = *stored.Email
	}
	if uploadedKey != "" {
		url, err := s.store.SignedURL(ctx, uploadedKey, s.urlExpiry)
		if err != nil {
			s.logger.Error(err, "failed to sign attachment url", "key", uploadedKey)
		} else {
			result.PDFURL = url
		}
	}
	return result, nil
}

// DecodePDF validates and decodes a base64 attachment payload against the
// filename and size rules shared by the intake and interactive create paths.
func DecodePDF(filename, data string, maxSize int64) ([]byte, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, apperrors.BadRequest("attachment must be a .pdf file", nil)
	}

	raw := data
	// Tolerate data: URLs from browser-originated callers.
	if idx := strings.Index(raw, ","); idx >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, apperrors.BadRequest("attachment is not valid base64", err)
	}
	if int64(len(decoded)) > maxSize {
		return nil, apperrors.BadRequest("attachment exceeds the size limit", nil)
	}
	if len(decoded) == 0 {
		return nil, apperrors.BadRequest("attachment is empty", nil)
	}
	return decoded, nil
}
