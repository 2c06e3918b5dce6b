package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/jobs"
	"github.com/sevigo/learnlog/internal/llm"
	"github.com/sevigo/learnlog/internal/metrics"
	"github.com/sevigo/learnlog/internal/quota"
	"github.com/sevigo/learnlog/internal/ratelimit"
	"github.com/sevigo/learnlog/internal/review"
	"github.com/sevigo/learnlog/internal/storage"
)

const sampleCode = "func add(a, b int) int { return a + b }"

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(context.Context, core.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

type testEnv struct {
	handler http.Handler
	store   *storage.MemoryStore
	gen     *fakeGenerator
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: "0", AdminToken: "secret"},
		AI:        config.AIConfig{LLMProvider: "ollama", RequestTimeout: time.Second},
		Quota:     config.QuotaConfig{Enabled: true, GlobalDailyLimit: 100, UserDailyLimit: 5, Timezone: "UTC"},
		RateLimit: config.RateLimitConfig{Provider: "test", RequestsPerMinute: 100, RequestsPerDay: 1000},
		Review:    config.ReviewConfig{LockTTL: time.Minute, MinContentLength: 20, MaxContentLength: 1000},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	logger := slog.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	store := storage.NewMemoryStore()
	counters := storage.NewMemoryCounterStore(nil)
	gate, err := quota.NewGate(counters, &cfg.Quota, logger, m)
	require.NoError(t, err)
	limiter := ratelimit.NewLimiter(counters, &cfg.RateLimit, logger, m)
	pm, err := llm.NewPromptManager()
	require.NoError(t, err)

	gen := &fakeGenerator{reply: "nice job"}
	orch := review.NewOrchestrator(store, gen, pm, cfg, logger, m)
	dispatcher := jobs.NewDispatcher(orch, 2, logger)
	t.Cleanup(func() {
		go func() {
			for range dispatcher.Results() {
			}
		}()
		dispatcher.Stop()
	})

	svc := Services{Reviews: orch, Quota: gate, Usage: limiter, Dispatcher: dispatcher}
	srv := NewServer(context.Background(), cfg, svc, reg, logger)
	return &testEnv{handler: srv.Handler(), store: store, gen: gen}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSubmission(t *testing.T, userID, content string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/submissions", map[string]string{
		"user_id": userID, "language": "go", "content": content,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSubmissionLifecycle(t *testing.T) {
	env := newTestEnv(t, testConfig())
	id := env.createSubmission(t, "u1", sampleCode)

	rec := env.do(t, http.MethodGet, "/api/v1/submissions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sub := decode[map[string]any](t, rec)
	assert.Equal(t, "NONE", sub["review_state"])
	assert.NotContains(t, sub, "review_text")

	rec = env.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.ReviewResult{Text: "nice job", Status: core.StatusGenerated}, decode[core.ReviewResult](t, rec))

	rec = env.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[core.ReviewResult](t, rec).WasCached)
	assert.Equal(t, 1, env.gen.calls)

	rec = env.do(t, http.MethodGet, "/api/v1/submissions/"+id, nil)
	sub = decode[map[string]any](t, rec)
	assert.Equal(t, "COMPLETED", sub["review_state"])
	assert.Equal(t, "nice job", sub["review_text"])

	rec = env.do(t, http.MethodGet, "/api/v1/quota?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.QuotaStatus{Enabled: true, GlobalUsed: 0, GlobalLimit: 100, UserUsed: 0, UserLimit: 5}, decode[core.QuotaStatus](t, rec),
		"usage is counted by the generator, which is faked here")
}

func TestCreateSubmission_BadInput(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, http.MethodPost, "/api/v1/submissions", map[string]string{"content": sampleCode})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/submissions", map[string]string{"user_id": "u1", "colour": "blue"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode[map[string]any](t, rec)["code"])
}

func TestRequestReview_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		retryAfter string
	}{
		{
			name:       "user quota",
			err:        &core.QuotaError{Reason: core.ErrUserLimitExceeded, Status: core.QuotaStatus{UserUsed: 5, UserLimit: 5}},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "user_quota_exceeded",
		},
		{
			name:       "service disabled",
			err:        &core.QuotaError{Reason: core.ErrServiceDisabled},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "service_disabled",
		},
		{
			name:       "too soon",
			err:        &core.RateLimitError{Reason: core.ErrTooSoon, RetryAfter: 3 * time.Second},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "rate_limited",
			retryAfter: "3",
		},
		{
			name:       "provider failure",
			err:        errors.New("upstream 500: secret internal detail"),
			wantStatus: http.StatusBadGateway,
			wantCode:   "generation_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig())
			env.gen.err = tt.err
			id := env.createSubmission(t, "u1", sampleCode)

			rec := env.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/review", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode[map[string]any](t, rec)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotContains(t, body["error"], "secret internal detail")
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
		})
	}
}

func TestRequestReview_InProgressAndMissing(t *testing.T) {
	env := newTestEnv(t, testConfig())
	id := env.createSubmission(t, "u1", sampleCode)

	now := time.Now()
	ok, err := env.store.TryAcquireLock(context.Background(), id, now, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	rec := env.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/review", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, core.StatusInProgress, decode[core.ReviewResult](t, rec).Status)
	assert.Zero(t, env.gen.calls)

	rec = env.do(t, http.MethodPost, "/api/v1/submissions/nope/review", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestReview_ShortInputPlaceholder(t *testing.T) {
	env := newTestEnv(t, testConfig())
	id := env.createSubmission(t, "u1", "x")

	rec := env.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[core.ReviewResult](t, rec)
	assert.Equal(t, core.StatusPlaceholder, res.Status)
	assert.Equal(t, review.ShortInputPlaceholder, res.Text)
	assert.Zero(t, env.gen.calls)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, http.MethodPut, "/api/v1/admin/quota/enabled", map[string]bool{"enabled": false})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/admin/quota/enabled", map[string]bool{"enabled": false}, "X-Admin-Token", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/admin/quota/enabled", map[string]bool{"enabled": false}, "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/quota?user_id=u1", nil)
	assert.False(t, decode[core.QuotaStatus](t, rec).Enabled)

	rec = env.do(t, http.MethodPut, "/api/v1/admin/quota/enabled", map[string]any{}, "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/admin/quota/limits", map[string]int{"global_limit": 0, "user_limit": 2}, "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/admin/quota/limits", map[string]int{"global_limit": 50, "user_limit": 2}, "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/quota?user_id=u1", nil)
	st := decode[core.QuotaStatus](t, rec)
	assert.Equal(t, int64(50), st.GlobalLimit)
	assert.Equal(t, int64(2), st.UserLimit)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/ratelimit/usage?threshold=0.5", nil, "X-Admin-Token", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decode[map[string]any](t, rec)
	assert.Equal(t, "test", usage["provider"])
	assert.Equal(t, false, usage["near_daily_limit"])

	rec = env.do(t, http.MethodGet, "/api/v1/admin/ratelimit/usage?threshold=2", nil, "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AdminToken = ""
	env := newTestEnv(t, cfg)

	rec := env.do(t, http.MethodGet, "/api/v1/admin/ratelimit/usage", nil, "X-Admin-Token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminBatch(t *testing.T) {
	env := newTestEnv(t, testConfig())
	a := env.createSubmission(t, "u1", sampleCode)
	b := env.createSubmission(t, "u2", sampleCode)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/reviews/batch", map[string][]string{"submission_ids": {a, b}}, "X-Admin-Token", "secret")
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[map[string][]string](t, rec)
	assert.ElementsMatch(t, []string{a, b}, resp["accepted"])

	assert.Eventually(t, func() bool {
		for _, id := range []string{a, b} {
			sub, err := env.store.GetSubmission(context.Background(), id)
			if err != nil {
				return false
			}
			if _, ok := sub.ReviewText(); !ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/reviews/batch", map[string][]string{"submission_ids": {}}, "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())
	id := env.createSubmission(t, "u1", sampleCode)
	env.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/review", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `learnlog_review_requests_total{status="generated"} 1`))
}

func TestClientThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ClientRPS = 1
	cfg.Server.ClientBurst = 1
	env := newTestEnv(t, cfg)
	id := env.createSubmission(t, "u1", sampleCode)

	rec := env.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/review", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/review", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Other routes are not throttled.
	rec = env.do(t, http.MethodGet, "/api/v1/submissions/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
