package engine

import (
	"bytes"
	"encoding/json"
	"strings"
)

// BuildEvidenceText joins the URL and each evidence structure, rendered as
// compact JSON, with single spaces. A nil page renders as null.
func BuildEvidenceText(url string, ev Evidence) string {
	dns := ev.DNS
	if dns == nil {
		dns = DNSEvidence{}
	}

	parts := []string{
		url,
		compactJSON(dns),
		compactJSON(ev.TLS),
		compactJSON(ev.WHOIS),
		compactJSON(ev.Page),
	}
	return strings.Join(parts, " ")
}

// compactJSON encodes v without HTML escaping so markup in page evidence
// stays readable to the model.
func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimRight(buf.String(), "\n")
}
