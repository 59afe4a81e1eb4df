package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextbridge/backend/internal/infrastructure/config"
	"github.com/contextbridge/backend/internal/types"
)

// tinyGIF is a 1x1 transparent GIF for screenshot payloads.
var tinyGIF = base64.StdEncoding.EncodeToString([]byte(
	"GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;"))

func testServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	for _, m := range mutate {
		m(cfg)
	}
	return New(cfg, nil)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRootDescribesService(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Context Bridge", body["service"])
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["connections"])
}

func TestCurrentContextPlaceholderBeforeIntake(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodGet, "/current-context", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var ctx types.PageContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctx))
	assert.Equal(t, "No context received yet", ctx.Title)
	assert.Equal(t, "waiting_for_context", ctx.Metadata["status"])
}

func TestContextRoundTrip(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/current-context", types.PageContext{
		URL:   "https://example.com/page",
		Title: "A Page",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/current-context?url=https://example.com/page", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ctx types.PageContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctx))
	assert.Equal(t, "A Page", ctx.Title)
	assert.NotZero(t, ctx.Timestamp)
}

func TestContextIntakeParsesHTML(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/current-context", map[string]any{
		"url":  "https://example.com/form",
		"html": `<html><head><title>Signup</title></head><body><form id="f"><input name="email" required/></form></body></html>`,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/agent/context?url=https://example.com/form", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ctx types.PageContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctx))
	assert.Equal(t, "Signup", ctx.Title)
	require.NotNil(t, ctx.DOM)
	require.Len(t, ctx.DOM.Forms, 1)
	assert.Equal(t, "email", ctx.DOM.Forms[0].Fields[0].Name)
}

func TestContextIntakeRequiresURL(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodPost, "/current-context", map[string]any{"title": "no url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentContextNotFound(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodGet, "/agent/context", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScreenshotDisabledIsForbidden(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodPost, "/screenshot", map[string]any{
		"url":        "https://example.com",
		"screenshot": tinyGIF,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestScreenshotRoundTrip(t *testing.T) {
	s := testServer(t, func(cfg *config.Config) {
		cfg.Bridge.EnableScreenshots = true
	})

	rec := do(t, s, http.MethodPost, "/screenshot", map[string]any{
		"url":        "https://example.com/page",
		"screenshot": tinyGIF,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])

	rec = do(t, s, http.MethodGet, "/agent/screenshot?url=https://example.com/page", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, tinyGIF, body["screenshot"])
}

func TestScreenshotWhitelistEnforced(t *testing.T) {
	s := testServer(t, func(cfg *config.Config) {
		cfg.Bridge.EnableScreenshots = true
		cfg.Bridge.WhitelistedPages = []string{"/checkout"}
	})

	rec := do(t, s, http.MethodPost, "/screenshot", map[string]any{
		"url":        "https://example.com/profile",
		"screenshot": tinyGIF,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodPost, "/screenshot", map[string]any{
		"url":        "https://example.com/checkout/pay",
		"screenshot": tinyGIF,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAgentScreenshotNotFound(t *testing.T) {
	s := testServer(t, func(cfg *config.Config) {
		cfg.Bridge.EnableScreenshots = true
	})
	rec := do(t, s, http.MethodGet, "/agent/screenshot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentContextWithScreenshotDegrades(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/current-context", types.PageContext{
		URL: "https://example.com/page", Title: "P",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// No screenshot stored: the response still carries the context.
	rec = do(t, s, http.MethodGet, "/agent/context-with-screenshot?url=https://example.com/page", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.ContextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "P", resp.Context.Title)
	assert.Empty(t, resp.Screenshot)
}

func TestAgentAnalysis(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodGet, "/agent/analysis", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/current-context", map[string]any{
		"url":  "https://shop.example.com/checkout",
		"html": `<html><head><title>Checkout</title></head><body><p>Pay now</p></body></html>`,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/agent/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var analysis types.ContextAnalysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Equal(t, types.PageTypeCheckout, analysis.PageType)
	assert.Equal(t, types.IntentPurchasing, analysis.UserIntent)
}

func TestAgentInstructions(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/current-context", map[string]any{
		"url":  "https://shop.example.com/checkout",
		"html": `<html><head><title>Checkout</title></head><body><p>Pay</p></body></html>`,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/agent/instructions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 0, body["delivered"])
	instructions, ok := body["instructions"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, instructions)
}

func TestPushInstructionValidatesWire(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/agent/instructions", map[string]any{
		"id":   "i1",
		"type": "redirect",
		"data": map[string]any{"url": "https://example.com/next"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "i1", body["id"])
	// No clients connected.
	assert.EqualValues(t, 0, body["delivered"])

	// Unknown tag is rejected before any broadcast.
	rec = do(t, s, http.MethodPost, "/agent/instructions", map[string]any{
		"id":   "i2",
		"type": "teleport",
		"data": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing variant-required field.
	rec = do(t, s, http.MethodPost, "/agent/instructions", map[string]any{
		"id":   "i3",
		"type": "redirect",
		"data": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t)

	do(t, s, http.MethodGet, "/health", nil)
	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bridge_")
}
