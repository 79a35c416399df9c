package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristat/internal/analytics"
	analyticshandler "veristat/internal/analytics/handler"
	analyticsstore "veristat/internal/analytics/store"
	"veristat/internal/audit"
	audithandler "veristat/internal/audit/handler"
	"veristat/internal/audit/integrity"
	"veristat/internal/audit/models"
	"veristat/internal/audit/publisher"
	auditstore "veristat/internal/audit/store"
	"veristat/internal/privacy"
	"veristat/internal/privacy/budget"
	"veristat/pkg/platform/crypto"
	"veristat/pkg/platform/middleware/auth"
)

var (
	jwtSecret  = []byte("router-test-secret")
	masterKey  = []byte("0123456789abcdef0123456789abcdef")
	adminToken = "ops-token"
)

func newRouter(t *testing.T) http.Handler {
	router, _, _ := newStack(t)
	return router
}

func newStack(t *testing.T) (http.Handler, *auditstore.MemoryStore, *publisher.Async) {
	t.Helper()
	logger := slog.Default()

	gate, err := privacy.New(budget.NewInMemoryLedger(budget.DefaultEpsilonCap))
	require.NoError(t, err)
	engine, err := analytics.NewService(analyticsstore.NewMemory(), gate)
	require.NoError(t, err)

	encrypter, err := crypto.NewService(masterKey)
	require.NoError(t, err)
	key, err := crypto.DeriveKey(masterKey, crypto.LabelAuditIntegrity, 32)
	require.NoError(t, err)
	hasher, err := integrity.New(key)
	require.NoError(t, err)
	events := auditstore.NewMemory()
	ledger, err := audit.NewService(events, encrypter, hasher,
		audit.WithEnvironment("test"))
	require.NoError(t, err)

	trail := publisher.NewAsync(ledger, publisher.WithLogger(logger))
	trail.Start()

	router := NewRouter(Deps{
		Analytics:     analyticshandler.New(engine, logger),
		Audit:         audithandler.New(ledger, logger),
		AuthValidator: auth.NewHMACValidator(jwtSecret),
		AdminToken:    adminToken,
		Logger:        logger,
		Metrics:       nil,
		AuditTrail:    trail,
	})
	return router, events, trail
}

func bearer(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "auditor-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwtSecret)
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestHealthz(t *testing.T) {
	router := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboardDefaultRange(t *testing.T) {
	router := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analytics/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body, "volume")
	assert.Contains(t, body, "generated_at")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestDashboardRejectsInvertedRange(t *testing.T) {
	router := newRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/v1/analytics/dashboard?start=2025-06-02T00:00:00Z&end=2025-06-01T00:00:00Z", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_range")
}

func TestDashboardRejectsMalformedTimestamp(t *testing.T) {
	router := newRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/dashboard?start=yesterday", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditRequiresBearer(t *testing.T) {
	router := newRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/audit/events",
		bytes.NewReader([]byte(`{"event_type":"USER_DATA_ACCESS"}`)))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditRecordRoundTrip(t *testing.T) {
	router := newRouter(t)

	payload := map[string]any{
		"event_type": "USER_DATA_ACCESS",
		"payload":    map[string]any{"email": "person@example.com"},
		"action":     "read",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/audit/events", bytes.NewReader(body))
	req.Header.Set("Authorization", bearer(t))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var event map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&event))
	assert.Equal(t, "USER_DATA_ACCESS", event["event_type"])
	// The bearer subject is the recorded principal.
	assert.Equal(t, "auditor-1", event["principal_ref"])
	assert.NotEmpty(t, event["integrity_hash"])

	encrypted, ok := event["encrypted_payload"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, encrypted, "email_encrypted")
	assert.NotContains(t, encrypted, "email")

	// The recorded event is readable back through history.
	histRec := httptest.NewRecorder()
	histReq := httptest.NewRequest(http.MethodGet, "/v1/audit/history/auditor-1", nil)
	histReq.Header.Set("Authorization", bearer(t))
	router.ServeHTTP(histRec, histReq)
	require.Equal(t, http.StatusOK, histRec.Code)

	var entries []map[string]any
	require.NoError(t, json.NewDecoder(histRec.Body).Decode(&entries))
	require.NotEmpty(t, entries)
	opened, ok := entries[0]["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "person@example.com", opened["email"])
}

func TestVerifyRangeEndpoint(t *testing.T) {
	router := newRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/audit/verify",
		bytes.NewReader([]byte(`{"start":"2025-06-01T00:00:00Z","end":"2025-06-02T00:00:00Z"}`)))
	req.Header.Set("Authorization", bearer(t))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.EqualValues(t, 100, report["integrity_score"])
}

func TestAdminPurgeRequiresToken(t *testing.T) {
	router := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/audit/purge", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/audit/purge", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body["deleted"])
}

func TestAdminActionsLeaveAuditTrail(t *testing.T) {
	router, events, trail := newStack(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/audit/purge", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Drain the async trail so the config-change event is persisted.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, trail.Close(ctx))

	recorded, err := events.ListByRange(ctx,
		time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, models.EventSystemConfigChange, recorded[0].EventType)
	assert.Equal(t, "/admin/audit/purge", recorded[0].Action)
	assert.True(t, recorded[0].IsCritical)
}

func TestAdminCacheInvalidate(t *testing.T) {
	router := newRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/analytics/cache/invalidate", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
