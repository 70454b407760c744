package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulnverified/nophish/internal/config"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/insight"
	"github.com/vulnverified/nophish/internal/logger"
	"github.com/vulnverified/nophish/internal/output"
)

const phishingPage = `<html><head><title>Secure Bank Login</title></head>
<body><h1>Verify your account</h1>
<form action="https://collector.invalid/steal" method="post"><input name="password" type="password"></form>
<a href="/help">Help</a></body></html>`

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// isolate runs the test in an empty directory with fast, local-only
// collector settings.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("ENV_FILE", "")
	t.Setenv("NO_COLOR", "1")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_BASE_URL", "")
	t.Setenv("NOPHISH_RENDERER", "static")
	t.Setenv("NOPHISH_DNS_SERVER", "127.0.0.1:1")
	t.Setenv("NOPHISH_DNS_TIMEOUT", "200ms")
	t.Setenv("NOPHISH_CONNECT_TIMEOUT", "500ms")
	t.Setenv("NOPHISH_WHOIS_TIMEOUT", "200ms")
	t.Setenv("NOPHISH_NAVIGATION_TIMEOUT", "5s")
	t.Setenv("NOPHISH_COLLECT_TIMEOUT", "10s")
}

func fakeLLM(t *testing.T, content []map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_cli",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"content":       content,
			"stop_reason":   "tool_use",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 10},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(phishingPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func highRiskVerdict() []map[string]any {
	return []map[string]any{{
		"type": "tool_use",
		"id":   "toolu_cli",
		"name": insight.ToolName,
		"input": map[string]any{
			"phishing_reason":   "Password form posts to another domain",
			"safe_reason":       "Unknown",
			"likelihood":        "High",
			"likelihood_reason": "Off-site credential form",
			"threat_score":      90,
			"security_summary":  "Likely credential harvesting.",
			"malicious_url":     "https://collector.invalid/steal",
		},
	}}
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "nophish dev\n", stdout)
}

func TestAnalyze_EmptyURL(t *testing.T) {
	isolate(t)
	_, stderr, err := runCLI(t, "analyze", "   ")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, output.MsgInvalidURL)
}

func TestAnalyze_MissingArgument(t *testing.T) {
	_, _, err := runCLI(t, "analyze")
	assert.Error(t, err)
}

func TestAnalyze_MissingAPIKey(t *testing.T) {
	isolate(t)
	_, _, err := runCLI(t, "analyze", "http://example.test")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestAnalyze_ExplicitConfigMustExist(t *testing.T) {
	isolate(t)
	_, _, err := runCLI(t, "analyze", "--config", "missing.yaml", "http://example.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestAnalyze_InvalidFlagValue(t *testing.T) {
	isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	_, _, err := runCLI(t, "analyze", "--temperature", "1.5", "http://example.test")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestAnalyze_JSONEndToEnd(t *testing.T) {
	isolate(t)
	llm := fakeLLM(t, highRiskVerdict())
	page := pageServer(t)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("ANTHROPIC_BASE_URL", llm.URL)

	stdout, stderr, err := runCLI(t, "analyze", "--json", page.URL+"/login")
	require.NoError(t, err, stderr)

	var report engine.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, engine.StateSucceeded, report.State)
	assert.Equal(t, "127.0.0.1", report.Host)
	require.NotNil(t, report.Insight)
	assert.Equal(t, engine.LikelihoodHigh, report.Insight.Likelihood)
	assert.Equal(t, engine.ThreatScore(90), report.Insight.ThreatScore)

	require.NotNil(t, report.Evidence.Page)
	assert.Equal(t, "Secure Bank Login", report.Evidence.Page.Title)
	require.Len(t, report.Evidence.Page.FormsAndActions, 1)
	assert.Equal(t, "https://collector.invalid/steal", report.Evidence.Page.FormsAndActions[0].ActionURL)
	assert.NotEmpty(t, report.Evidence.TLS.Error)

	assert.NotContains(t, stderr, "[1/5]", "--json suppresses progress")
}

func TestAnalyze_TableEndToEnd(t *testing.T) {
	isolate(t)
	llm := fakeLLM(t, highRiskVerdict())
	page := pageServer(t)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("ANTHROPIC_BASE_URL", llm.URL)

	stdout, stderr, err := runCLI(t, "analyze", "--no-color", page.URL)
	require.NoError(t, err, stderr)

	assert.Contains(t, stderr, "nophish dev")
	assert.Contains(t, stderr, "[1/5]")
	assert.Contains(t, stderr, "[5/5]")
	assert.Contains(t, stdout, "Phishing likelihood: High")
	assert.Contains(t, stdout, "Threat score: 90/100")
	assert.Contains(t, stdout, "1 forms (1 post off-site)")
}

func TestAnalyze_ExtractionFailure(t *testing.T) {
	isolate(t)
	llm := fakeLLM(t, []map[string]any{{"type": "text", "text": "I cannot tell."}})
	page := pageServer(t)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("ANTHROPIC_BASE_URL", llm.URL)

	stdout, _, err := runCLI(t, "analyze", "--silent", page.URL)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stdout, output.MsgAnalysisFailed)
}

func TestAnalyze_EmptyVerdictFails(t *testing.T) {
	isolate(t)
	llm := fakeLLM(t, []map[string]any{{
		"type":  "tool_use",
		"id":    "toolu_cli",
		"name":  insight.ToolName,
		"input": map[string]any{},
	}})
	page := pageServer(t)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("ANTHROPIC_BASE_URL", llm.URL)

	stdout, stderr, err := runCLI(t, "analyze", "--json", page.URL)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, output.MsgAnalysisFailed)

	var report engine.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, engine.StateFailed, report.State)
	assert.Nil(t, report.Insight)
	assert.Contains(t, report.FailureReason, "unparseable insight")
}

func TestApplyAnalyzeFlags(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	analyze, _, err := cmd.Find([]string{"analyze"})
	require.NoError(t, err)

	require.NoError(t, analyze.ParseFlags([]string{"--renderer", "static", "--token-ceiling", "100"}))

	cfg := config.Default()
	applyAnalyzeFlags(analyze, &analyzeOptions{renderer: "static", tokenCeiling: 100, model: "ignored"}, cfg)
	assert.Equal(t, config.RendererStatic, cfg.Collectors.Renderer)
	assert.Equal(t, 100, cfg.TokenCeiling)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model, "unset flags leave config alone")
}

func TestBuildPipeline(t *testing.T) {
	cfg := config.Default()
	_, err := buildPipeline(cfg, logger.NewNop(), nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg.Credentials.APIKey = "test-key"
	p, err := buildPipeline(cfg, logger.NewNop(), nil)
	require.NoError(t, err)
	assert.NotNil(t, p)

	cfg.Encoding = "no_such_encoding"
	_, err = buildPipeline(cfg, logger.NewNop(), nil)
	assert.Error(t, err)
}
