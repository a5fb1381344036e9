package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	notifymem "github.com/JakeFAU/pagewatch/internal/notify/memory"
	"github.com/JakeFAU/pagewatch/internal/storage/memory"
)

type fakeChecker struct {
	summary monitor.PassSummary
	passErr error
	mode    monitor.PassMode
	result  monitor.CheckResult
}

func (f *fakeChecker) RunPass(_ context.Context, mode monitor.PassMode) (monitor.PassSummary, error) {
	f.mode = mode
	return f.summary, f.passErr
}

func (f *fakeChecker) Check(_ context.Context, targetID string) monitor.CheckResult {
	res := f.result
	res.TargetID = targetID
	return res
}

type slowChecker struct {
	fakeChecker
	delay    time.Duration
	canceled atomic.Bool
}

func (s *slowChecker) RunPass(ctx context.Context, mode monitor.PassMode) (monitor.PassSummary, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		s.canceled.Store(true)
		return monitor.PassSummary{}, ctx.Err()
	}
	return s.fakeChecker.RunPass(ctx, mode)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type pingFailStore struct {
	*memory.Store
}

func (pingFailStore) Ping(context.Context) error { return errors.New("db down") }

type harness struct {
	server   *Server
	checker  *fakeChecker
	store    *memory.Store
	notifier *notifymem.Notifier
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	h := &harness{
		checker:  &fakeChecker{},
		store:    memory.NewStore(),
		notifier: notifymem.New(),
	}
	clock := fixedClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	h.server = NewServer(h.checker, h.store, h.notifier, clock, cfg, zap.NewNop())
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/readyz", "").Code)

	down := NewServer(&fakeChecker{}, pingFailStore{memory.NewStore()}, nil, fixedClock{}, config.Config{}, nil)
	rec := httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRunDuePassReturnsSummary(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})
	h.checker.summary = monitor.PassSummary{
		Mode:             monitor.PassDue,
		TotalActiveCount: 3,
		Results: []monitor.CheckResult{
			{TargetID: "a", Outcome: monitor.OutcomeChanged, CheckID: "c1", Fingerprint: "fp1"},
			{TargetID: "b", Outcome: monitor.OutcomeFailed, CheckID: "c2", Err: &monitor.FetchError{Reason: "timeout", Attempts: 3}},
		},
	}

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := h.do(t, method, "/v1/checks/due", "")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[map[string]any](t, rec)
		require.Equal(t, true, body["success"])
		require.InDelta(t, 2, body["checkedCount"], 0)
		require.InDelta(t, 3, body["totalActiveCount"], 0)

		results, ok := body["results"].([]any)
		require.True(t, ok)
		require.Len(t, results, 2)

		first := results[0].(map[string]any)
		require.Equal(t, "a", first["targetId"])
		require.Equal(t, true, first["changeDetected"])
		require.Equal(t, "fp1", first["fingerprint"])
		require.Equal(t, "c1", first["checkId"])

		second := results[1].(map[string]any)
		require.Equal(t, false, second["success"])
		require.NotContains(t, second, "changeDetected")
		require.Contains(t, second["error"], "timeout")
	}
	require.Equal(t, monitor.PassDue, h.checker.mode)
}

func TestRunAllPassUsesAllMode(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodPost, "/v1/checks/all", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, monitor.PassAll, h.checker.mode)
	body := decode[PassResponse](t, rec)
	require.NotNil(t, body.Results)
	require.Empty(t, body.Results)
}

func TestRunPassFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})
	h.checker.passErr = &monitor.StorageError{Op: "list active targets", Err: errors.New("boom")}

	rec := h.do(t, http.MethodPost, "/v1/checks/due", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[PassResponse](t, rec)
	require.False(t, body.Success)
	require.Equal(t, "failed to run check pass", body.Error)
}

func TestCheckTargetStatusCodes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		result monitor.CheckResult
		status int
	}{
		{"changed", monitor.CheckResult{Outcome: monitor.OutcomeChanged, CheckID: "c"}, http.StatusOK},
		{"fetch failure", monitor.CheckResult{Outcome: monitor.OutcomeFailed, Err: &monitor.FetchError{Reason: "x"}}, http.StatusOK},
		{"in progress", monitor.CheckResult{Outcome: monitor.OutcomeFailed, Err: monitor.ErrCheckInProgress}, http.StatusConflict},
		{"missing", monitor.CheckResult{Outcome: monitor.OutcomeFailed, Err: monitor.ErrNotFoundOrInactive}, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, config.Config{})
			h.checker.result = tc.result

			rec := h.do(t, http.MethodPost, "/v1/targets/t-1/check", "")

			require.Equal(t, tc.status, rec.Code)
			body := decode[ResultResponse](t, rec)
			require.Equal(t, "t-1", body.TargetID)
		})
	}
}

func TestTargetCRUD(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodPost, "/v1/targets", `{"url":"https://example.com","name":"Example","check_interval_minutes":30}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[monitor.Target](t, rec)
	require.NotEmpty(t, created.ID)
	require.True(t, created.IsActive)

	rec = h.do(t, http.MethodGet, "/v1/targets/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Example", decode[monitor.Target](t, rec).Name)

	rec = h.do(t, http.MethodPut, "/v1/targets/"+created.ID, `{"url":"https://example.org","name":"Renamed","check_interval_minutes":5,"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[monitor.Target](t, rec)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, "https://example.org", updated.URL)
	require.False(t, updated.IsActive)

	rec = h.do(t, http.MethodGet, "/v1/targets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]monitor.Target](t, rec)
	require.Len(t, list["targets"], 1)

	require.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/v1/targets/"+created.ID, "").Code)
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/targets/"+created.ID, "").Code)
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/v1/targets/"+created.ID, "").Code)
}

func TestCreateTargetValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"url":`, "invalid JSON body"},
		{"unknown field", `{"url":"https://example.com","name":"x","check_interval_minutes":1,"extra":1}`, "invalid JSON body"},
		{"missing url", `{"name":"x","check_interval_minutes":1}`, "URL failed required"},
		{"bad url", `{"url":"not a url","name":"x","check_interval_minutes":1}`, "URL failed http_url"},
		{"blank name", `{"url":"https://example.com","name":"  ","check_interval_minutes":1}`, "Name failed required"},
		{"zero interval", `{"url":"https://example.com","name":"x","check_interval_minutes":0}`, "CheckIntervalMinutes failed required"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, config.Config{})

			rec := h.do(t, http.MethodPost, "/v1/targets", tc.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, decode[map[string]string](t, rec)["error"], tc.want)
		})
	}
}

func TestUpdateMissingTarget(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodPut, "/v1/targets/nope", `{"url":"https://example.com","name":"x","check_interval_minutes":1}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLogs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})
	ctx := context.Background()
	target, err := h.store.CreateTarget(ctx, monitor.Target{URL: "https://example.com", Name: "Example", CheckIntervalMinutes: 60, IsActive: true})
	require.NoError(t, err)
	for i := range 3 {
		_, err := h.store.CreateCheckRecord(ctx, monitor.CheckRecord{
			TargetID:    target.ID,
			Fingerprint: "fp",
			CheckedAt:   time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	rec := h.do(t, http.MethodGet, "/v1/logs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Logs  []monitor.CheckLog `json:"logs"`
		Limit int                `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Limit)
	require.Len(t, body.Logs, 2)
	require.Equal(t, "Example", body.Logs[0].TargetName)

	require.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/v1/logs?limit=abc", "").Code)
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"", defaultLogLimit, true},
		{"10", 10, true},
		{"10000", maxLogLimit, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"x", 0, false},
	}
	for _, tc := range testCases {
		got, ok := parseLimit(tc.raw)
		require.Equal(t, tc.ok, ok, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
}

func TestDiffEndpoint(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodPost, "/v1/diff", `{"old":"Hello","new":"Hello World"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	require.Equal(t, true, body["has_changes"])
	require.NotContains(t, body, "window")

	require.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/v1/diff", "{").Code)
}

func TestDiffEndpointIncludesWindowForLongContent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})
	long := strings.Repeat("word ", 2000)
	payload, err := json.Marshal(map[string]string{"old": long, "new": long + "tail"})
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/v1/diff", string(payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decode[map[string]any](t, rec)["window"])
}

func TestTestNotification(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodPost, "/v1/notifications/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sent := h.notifier.Notifications()
	require.Len(t, sent, 1)
	require.Equal(t, "Test Notification", sent[0].Target.Name)
	require.True(t, sent[0].Check.ChangeDetected)

	h.notifier.SetError(errors.New("smtp down"))
	rec = h.do(t, http.MethodPost, "/v1/notifications/test", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, decode[map[string]any](t, rec)["error"], "smtp down")
}

func TestAPIKeyRequiredWhenEnabled(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	h := newHarness(t, cfg)

	require.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/v1/targets", "").Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/targets?api_key=secret", "").Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/targets", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()
	s := NewServer(&fakeChecker{}, memory.NewStore(), nil, fixedClock{}, config.Config{}, nil)
	handler := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodGet, "/nope", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not found", decode[map[string]string](t, rec)["error"])
}

func TestPassOutlivesRequestTimeout(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}
	cfg.Server.RequestTimeoutSeconds = 1
	slow := &slowChecker{delay: 1500 * time.Millisecond}
	slow.summary = monitor.PassSummary{
		TotalActiveCount: 1,
		Results:          []monitor.CheckResult{{TargetID: "t1", Outcome: monitor.OutcomeUnchanged, Fingerprint: "fp"}},
	}
	s := NewServer(slow, memory.NewStore(), nil, fixedClock{}, cfg, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checks/all", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.False(t, slow.canceled.Load())
	body := decode[PassResponse](t, rec)
	require.True(t, body.Success)
	require.Equal(t, 1, body.CheckedCount)
}

func TestTimeoutMiddlewareWritesJSON(t *testing.T) {
	t.Parallel()
	handler := timeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/logs", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "request timed out", decode[map[string]string](t, rec)["error"])
}
