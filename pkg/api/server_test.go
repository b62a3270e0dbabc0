package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.prompthunter/pkg/aiscore"
	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/metrics"
	"digital.vasic.prompthunter/pkg/monitor"
	"digital.vasic.prompthunter/pkg/session"
)

const testKey = "AIzaSyA1234567890abcdefghijklmnopqrs"

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	keys  []string
}

func (g *stubGenerator) Generate(_ context.Context, apiKey, _ string) (aiscore.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, apiKey)
	return aiscore.Response{Text: g.reply}, g.err
}

type fixture struct {
	handler   http.Handler
	gen       *stubGenerator
	collector *monitor.EventCollector
	metrics   *metrics.PrometheusMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bank := content.NewBank()
	require.NoError(t, bank.LoadFile("../content/testdata/pack.json"))

	gen := &stubGenerator{reply: "100"}
	collector := monitor.NewEventCollector(0)
	hub := monitor.NewHub(nil, nil)
	hub.Attach(collector)
	pm := metrics.NewPrometheusMetrics()

	mgr := session.NewManager(bank,
		session.WithGenerator(gen),
		session.WithClientOptions(
			aiscore.WithMinInterval(0),
			aiscore.WithRetry(0, time.Millisecond, time.Millisecond, 0),
		),
		session.WithEvents(collector),
		session.WithMetrics(pm),
	)
	srv := NewServer(mgr, bank,
		WithMonitor(hub, collector),
		WithRegistry(pm.Registry()),
	)
	return &fixture{handler: srv.Routes(), gen: gen, collector: collector, metrics: pm}
}

func (f *fixture) do(t *testing.T, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createSession(t *testing.T, role string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sessions", map[string]string{"role_id": role}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var info session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.NotEmpty(t, info.ID)
	return info.ID
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["roles"])
}

func TestRoles_HideAnswers(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/roles", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	roles := decodeBody[[]RoleView](t, rec)
	require.Len(t, roles, 2)
	assert.Equal(t, "coder", roles[0].ID)
	assert.Equal(t, "keywords", roles[0].Phases[1].Variant)
	assert.True(t, roles[1].Phases[0].CopyTyping)

	raw := rec.Body.String()
	assert.NotContains(t, raw, "token=abc")
	assert.NotContains(t, raw, "bug_catalog")
	assert.NotContains(t, raw, "The quick brown fox.")
	assert.NotContains(t, raw, "Fix the loop bound.")
	assert.Empty(t, roles[0].Phases[1].Prompt)
}

func TestViewPhase_MasksMysterious(t *testing.T) {
	v := viewPhase(&content.Phase{
		Phase:     1,
		Prompt:    "Say the secret word.",
		Validator: content.Mysterious{Keywords: []string{"x"}, PromptMask: "???", Hint: "listen"},
	})
	assert.Equal(t, "???", v.Prompt)
	assert.Equal(t, "listen", v.Hint)
	assert.Empty(t, v.Variant)

	unmasked := viewPhase(&content.Phase{
		Phase:     2,
		Prompt:    "Say the secret word.",
		Validator: content.Mysterious{Keywords: []string{"x"}},
	})
	assert.Empty(t, unmasked.Prompt)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t, "coder")

	rec := f.do(t, http.MethodGet, "/sessions/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coder", decodeBody[session.Info](t, rec).RoleID)

	rec = f.do(t, http.MethodGet, "/sessions", nil, "")
	assert.Len(t, decodeBody[[]session.Info](t, rec), 1)

	rec = f.do(t, http.MethodDelete, "/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody[errorResponse](t, rec).Error, "session not found")
}

func TestCreateSession_BadInput(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/sessions", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/sessions", map[string]string{"role_id": "dragon"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{"))
	out := httptest.NewRecorder()
	f.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t, "coder")

	rec := f.do(t, http.MethodPost, "/sessions/"+id+"/phases/1/validate", validateRequest{Text: "3, 4"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, res["ok"])
	assert.Equal(t, "equals_number", res["variant"])

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/phases/1/validate", validateRequest{Text: "3"}, "")
	res = decodeBody[map[string]any](t, rec)
	assert.Equal(t, false, res["ok"])
	assert.Equal(t, "Expected 2 numbers, got 1", res["message"])

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/phases/abc/validate", validateRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/phases/7/validate", validateRequest{}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 2, f.collector.Stats().Validations)
}

func TestValidate_AIScoreUsesHeaderKey(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t, "coder")

	rec := f.do(t, http.MethodPost, "/sessions/"+id+"/phases/3/validate", validateRequest{Text: "' OR 1=1"}, testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, res["ok"])
	assert.EqualValues(t, 100, res["score"])
	assert.Equal(t, []string{testKey}, f.gen.keys)

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/phases/3/validate", validateRequest{Text: "' OR 1=1"}, "")
	res = decodeBody[map[string]any](t, rec)
	assert.Equal(t, false, res["ok"])
	assert.Equal(t, "API key required for validation", res["message"])
}

func TestCopyTypingRoutes(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t, "healer")
	base := "/sessions/" + id + "/phases/1"

	rec := f.do(t, http.MethodGet, base+"/sentence", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "The quick brown fox.", body["target_sentence"])
	assert.EqualValues(t, 2, body["sentences_remaining"])

	rec = f.do(t, http.MethodPost, base+"/validate", validateRequest{Text: "The quick brown fix."}, "")
	body = decodeBody[map[string]any](t, rec)
	assert.Equal(t, false, body["ok"])
	assert.EqualValues(t, 1, body["error_count"])

	rec = f.do(t, http.MethodPost, base+"/skip", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"skipped": true}, decodeBody[map[string]bool](t, rec))

	rec = f.do(t, http.MethodPost, base+"/reset", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "The quick brown fox.", decodeBody[map[string]any](t, rec)["target_sentence"])

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/restart", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/sessions/"+id+"/phases/2/sentence", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChat(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = "Check the loop bound."
	id := f.createSession(t, "coder")

	rec := f.do(t, http.MethodPost, "/sessions/"+id+"/phases/2/chat", chatRequest{Prompt: "help"}, testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decodeBody[aiscore.ChatReply](t, rec)
	assert.Equal(t, "Check the loop bound.", reply.Text)

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/phases/2/chat", chatRequest{Prompt: " "}, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/phases/2/chat", chatRequest{Prompt: "help"}, "bad-key")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_key_format", decodeBody[errorResponse](t, rec).Kind)
}

func TestChat_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.gen.err = &aiscore.Error{Kind: aiscore.KindRateLimited, Status: 429, RetryAfter: 1500 * time.Millisecond}
	id := f.createSession(t, "coder")

	rec := f.do(t, http.MethodPost, "/sessions/"+id+"/phases/1/chat", chatRequest{Prompt: "?"}, testKey)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, decodeBody[errorResponse](t, rec).Error, "Rate limited")
}

func TestMetricsAndDashboard(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t, "coder")
	f.do(t, http.MethodPost, "/sessions/"+id+"/phases/1/validate", validateRequest{Text: "3,4"}, "")

	rec := f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "prompthunter_validations_total")
	assert.Contains(t, rec.Body.String(), "prompthunter_active_sessions 1")

	rec = f.do(t, http.MethodGet, "/dashboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decodeBody[dashboardResponse](t, rec)
	assert.Equal(t, 1, dash.Dashboard.Summary.Passed)
	require.NotNil(t, dash.Stats)
	assert.Equal(t, 1, dash.Stats.Sessions)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodOptions, "/sessions", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), APIKeyHeader)
}
