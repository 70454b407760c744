// Package engine orchestrates the nophish analysis pipeline.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Report is the top-level output of one analysis.
type Report struct {
	URL           string           `json:"url"`
	Domain        string           `json:"domain"`
	Host          string           `json:"host"`
	State         State            `json:"state"`
	States        []State          `json:"states"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Evidence      Evidence         `json:"evidence"`
	TokenCount    int              `json:"token_count"`
	Truncated     bool             `json:"truncated"`
	Insight       *PhishingInsight `json:"insight"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	DurationSecs  float64          `json:"duration_secs"`
}

// Target is the analysis target derived from the input URL. Domain is the
// registrable domain, Host the full hostname.
type Target struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
	Host   string `json:"host"`
}

// DNSEvidence maps a record type ("A", "CNAME") to its values in resolver
// order. Types that failed to resolve are absent.
type DNSEvidence map[string][]string

// TLSEvidence holds either the peer certificate or an error message, never both.
type TLSEvidence struct {
	Certificate *TLSCertificate `json:"certificate"`
	Error       string          `json:"error,omitempty"`
}

// TLSCertificate is the subset of the leaf certificate sent to the model.
type TLSCertificate struct {
	Issuer         []NameComponent `json:"issuer"`
	Subject        []NameComponent `json:"subject"`
	ExpirationDate string          `json:"expiration_date"`
}

// NameComponent is one relative distinguished name attribute, e.g. {"CN", "example.com"}.
type NameComponent struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WHOISEvidence holds any subset of registration facts, or only ErrorMessage.
type WHOISEvidence struct {
	DomainAgeInDays *int   `json:"Domain_Age_In_Days,omitempty"`
	Registrar       string `json:"Domain_Registrar,omitempty"`
	Country         string `json:"Domain_Registered_Country,omitempty"`
	ErrorMessage    string `json:"Error_Message,omitempty"`
}

// RenderedPage is the content snapshot of a loaded page.
type RenderedPage struct {
	Title           string       `json:"title"`
	TextContent     string       `json:"text_content"`
	FormsAndActions []FormAction `json:"forms_and_actions"`
	Links           []string     `json:"links"`
	MetaInfo        []string     `json:"meta_info"`
	Scripts         []string     `json:"scripts"`
}

// FormAction pairs a serialized form with its resolved submission URL.
type FormAction struct {
	FormHTML  string `json:"formHTML"`
	ActionURL string `json:"actionURL"`
}

// Evidence is everything collected about a target before analysis.
type Evidence struct {
	DNS   DNSEvidence   `json:"dns"`
	TLS   TLSEvidence   `json:"tls"`
	WHOIS WHOISEvidence `json:"whois"`
	Page  *RenderedPage `json:"page"`
}

// Likelihood is the model's phishing likelihood bucket.
type Likelihood string

// Likelihood values accepted from the model.
const (
	LikelihoodHigh    Likelihood = "High"
	LikelihoodMedium  Likelihood = "Medium"
	LikelihoodLow     Likelihood = "Low"
	LikelihoodUnknown Likelihood = "Unknown"
)

// Valid reports whether l is one of the enumerated values.
func (l Likelihood) Valid() bool {
	switch l {
	case LikelihoodHigh, LikelihoodMedium, LikelihoodLow, LikelihoodUnknown:
		return true
	}
	return false
}

// ThreatScore is a 10..100 score in steps of 10.
type ThreatScore int

// Valid reports whether s is in {10, 20, ..., 100}.
func (s ThreatScore) Valid() bool {
	return s >= 10 && s <= 100 && s%10 == 0
}

// UnmarshalJSON accepts an integral number or a numeric string.
func (s *ThreatScore) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("threat_score %s: not a number", string(data))
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("threat_score %s: not an integer", string(data))
	}
	if math.Abs(f) > math.MaxInt32 {
		return fmt.Errorf("threat_score %s: out of range", string(data))
	}
	*s = ThreatScore(int(f))
	return nil
}

// PhishingInsight is the model's structured verdict.
type PhishingInsight struct {
	PhishingReason   string      `json:"phishing_reason"`
	SafeReason       string      `json:"safe_reason"`
	Likelihood       Likelihood  `json:"likelihood"`
	ThreatScore      ThreatScore `json:"threat_score"`
	SecuritySummary  string      `json:"security_summary"`
	LikelihoodReason string      `json:"likelihood_reason"`
	MaliciousURL     string      `json:"malicious_url,omitempty"`
}

// TargetResolver derives the registrable domain and host from a URL.
type TargetResolver interface {
	Resolve(rawURL string) (Target, error)
}

// DNSFetcher resolves A and CNAME records. It never fails; missing types are omitted.
type DNSFetcher interface {
	FetchDNS(ctx context.Context, domain string) DNSEvidence
}

// TLSFetcher reads the peer certificate of host:port.
type TLSFetcher interface {
	FetchTLS(ctx context.Context, host string, port int) TLSEvidence
}

// WHOISAnalyzer derives registration facts for a domain.
type WHOISAnalyzer interface {
	AnalyzeWHOIS(ctx context.Context, domain string) WHOISEvidence
}

// PageRenderer loads a URL and snapshots its content. Returns nil on failure.
type PageRenderer interface {
	Render(ctx context.Context, url string) *RenderedPage
}

// TokenGuard bounds the evidence text to the model's token ceiling.
type TokenGuard interface {
	Truncate(text string) (out string, tokens int, truncated bool)
}

// InsightExtractor asks the model for a verdict on the evidence text.
type InsightExtractor interface {
	Extract(ctx context.Context, evidence string) (*PhishingInsight, error)
}

// MarshalIndent is the JSON form used for reports on stdout and over HTTP.
func (r *Report) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
