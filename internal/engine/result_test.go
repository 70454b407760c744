package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreatScore_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    ThreatScore
		wantErr bool
	}{
		{`70`, 70, false},
		{`"40"`, 40, false},
		{`" 90 "`, 90, false},
		{`100.0`, 100, false},
		{`null`, 0, false},
		{`"high"`, 0, true},
		{`true`, 0, true},
		{`85.9`, 0, true},
		{`"72.5"`, 0, true},
		{`"1e30"`, 0, true},
		{`-1e12`, 0, true},
		{`1e2`, 100, false},
	}
	for _, tt := range tests {
		var got ThreatScore
		err := json.Unmarshal([]byte(tt.in), &got)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestThreatScore_Valid(t *testing.T) {
	for s := ThreatScore(10); s <= 100; s += 10 {
		assert.True(t, s.Valid(), "%d", s)
	}
	for _, s := range []ThreatScore{0, 5, 15, 110, -10} {
		assert.False(t, s.Valid(), "%d", s)
	}
}

func TestLikelihood_Valid(t *testing.T) {
	assert.True(t, LikelihoodHigh.Valid())
	assert.True(t, LikelihoodUnknown.Valid())
	assert.False(t, Likelihood("high").Valid())
	assert.False(t, Likelihood("").Valid())
}

func TestWHOISEvidence_JSONKeys(t *testing.T) {
	age := 42
	data, err := json.Marshal(WHOISEvidence{DomainAgeInDays: &age, Registrar: "Example Registrar"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Domain_Age_In_Days":42,"Domain_Registrar":"Example Registrar"}`, string(data))

	data, err = json.Marshal(WHOISEvidence{ErrorMessage: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Error_Message":"boom"}`, string(data))
}

func TestBuildEvidenceText(t *testing.T) {
	ev := Evidence{
		DNS: DNSEvidence{"A": {"1.2.3.4"}},
		TLS: TLSEvidence{Error: "Could not resolve host"},
		Page: &RenderedPage{
			Title:           "Sign in",
			FormsAndActions: []FormAction{{FormHTML: `<form action="/login"></form>`, ActionURL: "http://x.test/login"}},
		},
	}

	text := BuildEvidenceText("http://x.test", ev)
	parts := strings.SplitN(text, " ", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "http://x.test", parts[0])
	assert.Contains(t, text, `{"A":["1.2.3.4"]}`)
	assert.Contains(t, text, `"error":"Could not resolve host"`)
	assert.Contains(t, text, `<form action=\"/login\"></form>`, "markup is not HTML-escaped")
	assert.Contains(t, text, `"title":"Sign in"`)
	assert.NotContains(t, text, "\n")
}

func TestBuildEvidenceText_EmptyEvidence(t *testing.T) {
	text := BuildEvidenceText("http://x.test", Evidence{})
	assert.Equal(t, `http://x.test {} {"certificate":null} {} null`, text)
}
