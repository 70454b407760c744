package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/output"
)

type fakeAnalyzer struct {
	report *engine.Report
	err    error
	panics bool
	gotURL string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, rawURL string) (*engine.Report, error) {
	if f.panics {
		panic("boom")
	}
	f.gotURL = rawURL
	return f.report, f.err
}

func succeededReport() *engine.Report {
	return &engine.Report{
		URL:          "http://example.test",
		Domain:       "example.test",
		Host:         "example.test",
		State:        engine.StateSucceeded,
		DurationSecs: 3.2,
		Evidence: engine.Evidence{
			DNS:   engine.DNSEvidence{"A": {"192.0.2.1"}},
			TLS:   engine.TLSEvidence{Error: "Connection timed out"},
			WHOIS: engine.WHOISEvidence{Registrar: "R"},
			Page:  &engine.RenderedPage{Title: "<b>Login</b>"},
		},
		Insight: &engine.PhishingInsight{Likelihood: engine.LikelihoodLow, ThreatScore: 20},
	}
}

func do(t *testing.T, s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New(Config{}, &fakeAnalyzer{}, nil)
	rec := do(t, s, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"status":"ok","version":%q}`, output.Version), rec.Body.String())
}

func TestAnalyze_Success(t *testing.T) {
	fa := &fakeAnalyzer{report: succeededReport()}
	s := New(Config{}, fa, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/analyze", `{"url":"  http://example.test  "}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://example.test", fa.gotURL)

	var got engine.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, engine.StateSucceeded, got.State)
	assert.Equal(t, engine.LikelihoodLow, got.Insight.Likelihood)
	assert.Contains(t, rec.Body.String(), `"title":"<b>Login</b>"`)
}

func TestAnalyze_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing url", `{}`, output.MsgInvalidURL},
		{"blank url", `{"url":"   "}`, output.MsgInvalidURL},
		{"not json", `url=x`, "invalid request body"},
		{"empty body", ``, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAnalyzer{}
			s := New(Config{}, fa, nil)
			rec := do(t, s, http.MethodPost, "/api/v1/analyze", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.wantErr), rec.Body.String())
			assert.Empty(t, fa.gotURL)
		})
	}
}

func TestAnalyze_FailedAnalysis(t *testing.T) {
	report := succeededReport()
	report.State = engine.StateFailed
	report.Insight = nil
	report.FailureReason = "model returned no insight"
	fa := &fakeAnalyzer{report: report, err: fmt.Errorf("%w: model returned no insight", engine.ErrAnalysisFailed)}
	s := New(Config{}, fa, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/analyze", `{"url":"http://example.test"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error  string         `json:"error"`
		Report *engine.Report `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "analysis failed", body.Error)
	require.NotNil(t, body.Report)
	assert.Equal(t, engine.StateFailed, body.Report.State)
	assert.Equal(t, "model returned no insight", body.Report.FailureReason)
}

func TestAnalyze_UnexpectedError(t *testing.T) {
	s := New(Config{}, &fakeAnalyzer{err: errors.New("kaboom")}, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/analyze", `{"url":"http://example.test"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, output.MsgAnalysisFailed), rec.Body.String())
}

func TestRecovery(t *testing.T) {
	s := New(Config{}, &fakeAnalyzer{panics: true}, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/analyze", `{"url":"http://example.test"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestRequestID(t *testing.T) {
	s := New(Config{}, &fakeAnalyzer{}, nil)

	rec := do(t, s, http.MethodGet, "/health", "", map[string]string{requestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = do(t, s, http.MethodGet, "/health", "", nil)
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)
}

func TestMetrics(t *testing.T) {
	s := New(Config{}, &fakeAnalyzer{report: succeededReport()}, nil)
	do(t, s, http.MethodPost, "/api/v1/analyze", `{"url":"http://example.test"}`, nil)

	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `nophish_analyses_total{state="succeeded"} 1`)
	assert.Contains(t, body, `nophish_collector_failures_total{collector="tls"} 1`)
	assert.NotContains(t, body, `collector="dns"`)
	assert.NotContains(t, body, `collector="page"`)
	assert.Contains(t, body, "nophish_analysis_duration_seconds_count 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_ObserveNilReport(t *testing.T) {
	m := NewMetrics()
	assert.NotPanics(t, func() { m.Observe(nil) })
}

func TestRun_GracefulShutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, &fakeAnalyzer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	defer ln.Close()
	addr := strings.TrimPrefix(ln.URL, "http://")

	s := New(Config{Addr: addr}, &fakeAnalyzer{}, nil)
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")
}
