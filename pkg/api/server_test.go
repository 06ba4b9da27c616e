package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/relay/pkg/blob"
	"github.com/Mindburn-Labs/relay/pkg/config"
	"github.com/Mindburn-Labs/relay/pkg/model"
	"github.com/Mindburn-Labs/relay/pkg/queue"
	"github.com/Mindburn-Labs/relay/pkg/ratelimit"
	"github.com/Mindburn-Labs/relay/pkg/signature"
	"github.com/Mindburn-Labs/relay/pkg/store"

	_ "modernc.org/sqlite"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

const testSecret = "whsec_test_secret"

type testApp struct {
	server  *Server
	handler http.Handler
	tenant  *model.Tenant
	apiKey  string
	blobs   *blob.MemoryStore
	queue   *queue.MemoryQueue
}

func newTestApp(t *testing.T, opts ...func(*Server)) *testApp {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background(), db))

	cfg := &config.Config{
		AllowedOrigins: "*",
		FrontendURL:    "https://hooks.local",
		APIKeySalt:     "test-salt",
	}
	blobs := blob.NewMemoryStore()
	q := queue.NewMemoryQueue()
	tenants := store.NewSQLTenantStore(db)
	keys := store.NewSQLAPIKeyStore(db, cfg.APIKeySalt)

	srv := NewServer(cfg, Deps{
		Tenants:    tenants,
		Keys:       keys,
		Targets:    store.NewSQLTargetStore(db),
		Events:     store.NewSQLEventStore(db),
		Deliveries: store.NewSQLDeliveryStore(db),
		Blobs:      blobs,
		Queue:      q,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv.now = func() time.Time { return testNow }
	for _, opt := range opts {
		opt(srv)
	}

	ctx := context.Background()
	tenant, err := tenants.Create(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, tenants.SetSigningSecret(ctx, tenant.Token, testSecret))
	tenant.SigningSecret = testSecret
	apiKey, err := keys.Issue(ctx, tenant.ID)
	require.NoError(t, err)

	return &testApp{
		server:  srv,
		handler: srv.Handler(),
		tenant:  tenant,
		apiKey:  apiKey,
		blobs:   blobs,
		queue:   q,
	}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// ingest posts raw to the tenant's ingress endpoint, signed at ts.
func (a *testApp) ingest(raw []byte, ts time.Time) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/in/"+a.tenant.Token, bytes.NewReader(raw))
	req.Header.Set("Stripe-Signature", signature.Header(raw, testSecret, ts.Unix()))
	return a.do(req)
}

func (a *testApp) authed(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	return req
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func TestIngress_AcceptsSignedEvent(t *testing.T) {
	app := newTestApp(t)
	raw := []byte(`{"id":"evt_1","event":"invoice.paid","data":{"amount":42}}`)

	rec := app.ingest(raw, testNow)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"received"}`, rec.Body.String())

	job, err := app.queue.Dequeue(context.Background(), testNow)
	require.NoError(t, err)
	require.NotNil(t, job, "admission enqueues the first attempt")
	assert.Equal(t, 1, job.Attempt)

	ev, err := app.server.Events.ByID(context.Background(), job.EventID)
	require.NoError(t, err)
	assert.Equal(t, signature.Fingerprint(raw), ev.Fingerprint)
	assert.Equal(t, string(raw), string(ev.Payload))

	got, ok := app.blobs.Get(ev.BlobKey())
	require.True(t, ok, "raw body archived under tenant/fingerprint key")
	assert.Equal(t, raw, got)
}

func TestIngress_DuplicateBodyIsAcknowledgedOnce(t *testing.T) {
	app := newTestApp(t)
	raw := []byte(`{"id":"evt_1","event":"invoice.paid"}`)

	rec := app.ingest(raw, testNow)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.ingest(raw, testNow.Add(5*time.Second))
	require.Equal(t, http.StatusOK, rec.Code, "duplicates are acknowledged, not errored")
	assert.JSONEq(t, `{"status":"received"}`, rec.Body.String())

	events, err := app.server.Events.ListByTenant(context.Background(), app.tenant.ID, 100)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, app.queue.Len(), "duplicate admission enqueues nothing")
}

func TestIngress_RejectsBadSignature(t *testing.T) {
	app := newTestApp(t)
	raw := []byte(`{"id":"evt_1","event":"ping"}`)

	req := httptest.NewRequest(http.MethodPost, "/in/"+app.tenant.Token, bytes.NewReader(raw))
	req.Header.Set("Stripe-Signature", signature.Header(raw, "whsec_wrong", testNow.Unix()))
	rec := app.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid Stripe signature", detailOf(t, rec))

	events, err := app.server.Events.ListByTenant(context.Background(), app.tenant.ID, 100)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestIngress_TimestampTolerance(t *testing.T) {
	app := newTestApp(t)
	raw := []byte(`{"id":"evt_1","event":"ping"}`)

	rec := app.ingest(raw, testNow.Add(-signature.DefaultTolerance))
	assert.Equal(t, http.StatusOK, rec.Code, "exactly at the tolerance edge is accepted")

	raw2 := []byte(`{"id":"evt_2","event":"ping"}`)
	rec = app.ingest(raw2, testNow.Add(-signature.DefaultTolerance-time.Second))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid Stripe signature", detailOf(t, rec))
}

func TestIngress_SignatureCoversExactBytes(t *testing.T) {
	app := newTestApp(t)
	signed := []byte(`{"id":"evt_1","event":"ping"}`)
	sent := []byte(`{"event":"ping","id":"evt_1"}`)

	req := httptest.NewRequest(http.MethodPost, "/in/"+app.tenant.Token, bytes.NewReader(sent))
	req.Header.Set("Stripe-Signature", signature.Header(signed, testSecret, testNow.Unix()))
	rec := app.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code, "semantically equal JSON with different bytes must fail")
}

func TestIngress_UnknownToken(t *testing.T) {
	app := newTestApp(t)
	raw := []byte(`{"id":"evt_1","event":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/in/tok_missing", bytes.NewReader(raw))
	req.Header.Set("Stripe-Signature", signature.Header(raw, testSecret, testNow.Unix()))
	rec := app.do(req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", detailOf(t, rec))
}

func TestIngress_EmptyBody(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/in/"+app.tenant.Token, bytes.NewReader(nil))
	req.Header.Set("Stripe-Signature", signature.Header(nil, testSecret, testNow.Unix()))
	rec := app.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Empty JSON body", detailOf(t, rec))
}

func TestIngress_MissingSignatureHeader(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(httptest.NewRequest(http.MethodPost, "/in/"+app.tenant.Token,
		strings.NewReader(`{"id":"evt_1","event":"ping"}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing Stripe signature", detailOf(t, rec))
}

func TestIngress_SignatureHeaderIsCaseInsensitive(t *testing.T) {
	app := newTestApp(t)
	raw := []byte(`{"id":"evt_1","event":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/in/"+app.tenant.Token, bytes.NewReader(raw))
	req.Header.Set("stripe-signature", signature.Header(raw, testSecret, testNow.Unix()))
	rec := app.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngress_NoSigningSecretConfigured(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	bare, err := app.server.Tenants.Create(ctx, "unconfigured")
	require.NoError(t, err)

	raw := []byte(`{"id":"evt_1","event":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/in/"+bare.Token, bytes.NewReader(raw))
	req.Header.Set("Stripe-Signature", signature.Header(raw, testSecret, testNow.Unix()))
	rec := app.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No signing secret configured for tenant", detailOf(t, rec))
}

func TestIngress_SchemaViolations(t *testing.T) {
	app := newTestApp(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing id", `{"event":"ping"}`},
		{"missing event", `{"id":"evt_1"}`},
		{"extra field", `{"id":"evt_1","event":"ping","extra":true}`},
		{"data not object", `{"id":"evt_1","event":"ping","data":[1,2]}`},
		{"id not string", `{"id":7,"event":"ping"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.ingest([]byte(tc.body), testNow)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			detail, ok := detailOf(t, rec).([]any)
			require.True(t, ok, "schema errors carry a field error list")
			assert.NotEmpty(t, detail)
		})
	}
}

func TestIngress_InvalidJSON(t *testing.T) {
	app := newTestApp(t)
	rec := app.ingest([]byte(`{"id":`), testNow)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON payload", detailOf(t, rec))
}

func TestIngress_BodySizeBoundary(t *testing.T) {
	app := newTestApp(t)

	// A valid payload of exactly MaxBodyBytes passes.
	prefix := `{"id":"evt_max","event":"ping","data":{"pad":"`
	suffix := `"}}`
	pad := strings.Repeat("a", MaxBodyBytes-len(prefix)-len(suffix))
	raw := []byte(prefix + pad + suffix)
	require.Len(t, raw, MaxBodyBytes)

	rec := app.ingest(raw, testNow)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// One byte over is refused before any other check.
	over := bytes.Repeat([]byte("a"), MaxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/in/tok_whatever", bytes.NewReader(over))
	rec = app.do(req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Payload too large", detailOf(t, rec))
}

func TestIngress_PerTokenRateLimit(t *testing.T) {
	app := newTestApp(t, func(s *Server) {
		s.Limiter = ratelimit.NewLocalLimiter()
	})
	app.handler = app.server.Handler()

	raw := []byte(`{"id":"evt_1","event":"ping"}`)
	var last *httptest.ResponseRecorder
	for i := 0; i < ratelimit.PerTokenLimit.Requests+1; i++ {
		last = app.ingest(raw, testNow)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
}

func TestReplay_QueuesFreshAttempt(t *testing.T) {
	app := newTestApp(t)
	raw := []byte(`{"id":"evt_1","event":"ping"}`)
	require.Equal(t, http.StatusOK, app.ingest(raw, testNow).Code)
	first, err := app.queue.Dequeue(context.Background(), testNow)
	require.NoError(t, err)
	require.NotNil(t, first)

	rec := app.do(app.authed(http.MethodPost, "/events/"+first.EventID+"/replay", nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, first.EventID, body["event_id"])

	rows, err := app.server.Deliveries.ListByEvent(context.Background(), first.EventID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Attempts)
	assert.Equal(t, "manual replay", rows[0].Response)

	job, err := app.queue.Dequeue(context.Background(), testNow)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempt, "replay restarts the attempt counter")
}

func TestReplay_OtherTenantsEventIsNotFound(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	other, err := app.server.Tenants.Create(ctx, "rival")
	require.NoError(t, err)
	ev, _, err := app.server.Events.Insert(ctx, other.ID, "fp-x", []byte(`{}`), testNow)
	require.NoError(t, err)

	rec := app.do(app.authed(http.MethodPost, "/events/"+ev.ID+"/replay", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplay_RequiresAPIKey(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(httptest.NewRequest(http.MethodPost, "/events/some-id/replay", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignup_ProvisionsTenant(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(httptest.NewRequest(http.MethodPost, "/signup",
		strings.NewReader(`{"name":"globex"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body signupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Tenant)
	assert.Equal(t, "globex", body.Tenant.Name)
	assert.NotEmpty(t, body.Tenant.Token)
	assert.True(t, strings.HasPrefix(body.APIKey, "rk_"), "raw key is returned once")
	assert.Equal(t, "https://hooks.local/in/"+body.Tenant.Token, body.IngressURL)

	// The fresh key authenticates.
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.APIKey)
	rec = app.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSignup_RequiresName(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe_ReturnsTenantWithoutSecret(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(app.authed(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, app.tenant.ID, body["id"])
	assert.Equal(t, app.tenant.Token, body["token"])
	assert.NotContains(t, rec.Body.String(), testSecret, "signing secret never leaves the server")
}

func TestTargets_UpsertReplacesInPlace(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(app.authed(http.MethodPost, "/targets",
		[]byte(`{"url":"https://first.example/hook","headers":{"X-Auth":"a"}}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first model.Target
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "stripe", first.Provider)

	rec = app.do(app.authed(http.MethodPost, "/targets",
		[]byte(`{"url":"https://second.example/hook"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var second model.Target
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID, "same provider replaces the target")
	assert.Equal(t, "https://second.example/hook", second.URL)
}

func TestTargets_RequiresURL(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(app.authed(http.MethodPost, "/targets", []byte(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEvents_NewestFirst(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _, err := app.server.Events.Insert(ctx, app.tenant.ID,
			fmt.Sprintf("fp-%d", i), []byte(`{}`), testNow.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	rec := app.do(app.authed(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []*model.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 3)
	assert.Equal(t, "fp-2", body.Events[0].Fingerprint)
}

func TestSigningSecret_RotateAndVerify(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(app.authed(http.MethodPut, "/tenants/"+app.tenant.Token+"/stripe",
		[]byte(`{"signing_secret":"whsec_rotated"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	raw := []byte(`{"id":"evt_1","event":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/in/"+app.tenant.Token, bytes.NewReader(raw))
	req.Header.Set("Stripe-Signature", signature.Header(raw, "whsec_rotated", testNow.Unix()))
	assert.Equal(t, http.StatusOK, app.do(req).Code)

	// The old secret stops working.
	raw2 := []byte(`{"id":"evt_2","event":"ping"}`)
	req = httptest.NewRequest(http.MethodPost, "/in/"+app.tenant.Token, bytes.NewReader(raw2))
	req.Header.Set("Stripe-Signature", signature.Header(raw2, testSecret, testNow.Unix()))
	assert.Equal(t, http.StatusBadRequest, app.do(req).Code)
}

func TestSigningSecret_ForeignTokenIsNotFound(t *testing.T) {
	app := newTestApp(t)
	other, err := app.server.Tenants.Create(context.Background(), "rival")
	require.NoError(t, err)

	rec := app.do(app.authed(http.MethodPut, "/tenants/"+other.Token+"/stripe",
		[]byte(`{"signing_secret":"whsec_hijack"}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "sqlite-lite", body["database"])
	assert.NotContains(t, rec.Body.String(), "://", "no connection strings in health output")
}
