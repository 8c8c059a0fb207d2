package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisboard/board-api/internal/handler"
	"github.com/praxisboard/board-api/internal/middleware"
	"github.com/praxisboard/board-api/internal/model"
	intakeservice "github.com/praxisboard/board-api/internal/service/intake"
	"github.com/praxisboard/board-api/internal/storage"
	"github.com/praxisboard/board-api/pkg/logger"
)

const testToken = "intake-secret"

type stubPatientRepo struct {
	nextID int64
}

func (r *stubPatientRepo) ListActive(context.Context, uuid.UUID) ([]*model.PatientRecord, error) {
	return nil, nil
}

func (r *stubPatientRepo) Insert(_ context.Context, rec *model.PatientRecord) (*model.PatientRecord, error) {
	r.nextID++
	stored := rec.Clone()
	stored.PatientID = r.nextID
	return stored, nil
}

func (r *stubPatientRepo) Update(context.Context, int64, uuid.UUID, *model.PatientUpdate) (*model.PatientRecord, error) {
	return nil, nil
}

func (r *stubPatientRepo) DeleteArchived(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (r *stubPatientRepo) CountArchived(context.Context, uuid.UUID, model.PatientStatus) (int, error) {
	return 0, nil
}

type stubRoleRepo struct{ adminID uuid.UUID }

func (r *stubRoleRepo) FirstAdminUserID(context.Context) (uuid.UUID, error) { return r.adminID, nil }
func (r *stubRoleRepo) ListForUser(context.Context, uuid.UUID) ([]*model.UserRole, error) {
	return nil, nil
}
func (r *stubRoleRepo) ListAll(context.Context) ([]*model.UserRole, error) { return nil, nil }
func (r *stubRoleRepo) Assign(context.Context, uuid.UUID, string) error    { return nil }
func (r *stubRoleRepo) Remove(context.Context, uuid.UUID, string) error    { return nil }

type stubStore struct{}

func (stubStore) Upload(context.Context, string, string, []byte) error { return nil }
func (stubStore) Download(context.Context, string) ([]byte, string, error) {
	return nil, "", nil
}
func (stubStore) Remove(context.Context, string) error { return nil }
func (stubStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}
func (stubStore) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "https://signed.example/x", nil
}
func (stubStore) PublicURL(string) string { return "https://public.example/x" }

func newTestRouter(t *testing.T, limit int, window time.Duration) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := intakeservice.NewService(
		&stubPatientRepo{}, &stubRoleRepo{adminID: uuid.New()}, stubStore{},
		logger.NewLogger(nil), 0, time.Hour,
	)
	h := NewHandler(svc, testToken, nil)

	engine := gin.New()
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	limiter := middleware.NewIntakeLimiter(limit, window, nil)
	h.RegisterRoutes(engine, limiter.RateLimit())
	return engine
}

func doRequest(engine *gin.Engine, token, clientIP string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/create-patient", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCreatePatientRejectsWrongToken(t *testing.T) {
	engine := newTestRouter(t, 10, time.Minute)

	w := doRequest(engine, "wrong", "1.2.3.4", gin.H{"lastName": "Müller"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp handler.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestCreatePatientRejectsMissingToken(t *testing.T) {
	engine := newTestRouter(t, 10, time.Minute)
	w := doRequest(engine, "", "1.2.3.4", gin.H{"lastName": "Müller"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePatientValidationFailure(t *testing.T) {
	engine := newTestRouter(t, 10, time.Minute)
	w := doRequest(engine, testToken, "1.2.3.4", gin.H{"lastName": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePatientSuccessEnvelope(t *testing.T) {
	engine := newTestRouter(t, 10, time.Minute)
	w := doRequest(engine, testToken, "1.2.3.4", gin.H{
		"firstName": "Anna",
		"lastName":  "Müller",
		"email":     "anna@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Anna Müller", data["name"])
	assert.Equal(t, string(model.PatientStatusSent), data["status"])
}

func TestCreatePatientRateLimitPerIdentity(t *testing.T) {
	engine := newTestRouter(t, 10, time.Minute)

	for i := 0; i < 10; i++ {
		w := doRequest(engine, testToken, "1.2.3.4", gin.H{
			"lastName": fmt.Sprintf("Patient %d", i),
		})
		require.Equal(t, http.StatusOK, w.Code, "request %d should pass", i)
	}

	w := doRequest(engine, testToken, "1.2.3.4", gin.H{"lastName": "Elfter"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different caller identity is unaffected.
	w = doRequest(engine, testToken, "5.6.7.8", gin.H{"lastName": "Andere"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreatePatientPreflight(t *testing.T) {
	engine := newTestRouter(t, 10, time.Minute)

	req := httptest.NewRequest(http.MethodOptions, "/create-patient", nil)
	req.Header.Set("Origin", "https://board.example")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Body.Bytes())
}
