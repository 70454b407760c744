package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
)

// ErrUnparseableInsight is returned when the model output is not insight JSON.
var ErrUnparseableInsight = errors.New("unparseable insight")

// ParseInsight decodes model output into a PhishingInsight. Values outside
// the schema's enums and missing required fields are logged and kept.
func ParseInsight(content string, log logger.Logger) (*engine.PhishingInsight, error) {
	if log == nil {
		log = logger.NewNop()
	}

	raw := stripCodeFence(content)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		log.Error("Could not parse insight JSON",
			logger.String("content", content),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnparseableInsight, err)
	}
	if !hasInsightField(fields) {
		log.Error("Insight JSON carries no insight fields", logger.String("content", content))
		return nil, fmt.Errorf("%w: no insight fields in %q", ErrUnparseableInsight, raw)
	}

	var ins engine.PhishingInsight
	if err := json.Unmarshal([]byte(raw), &ins); err != nil {
		log.Error("Insight JSON has wrong field types",
			logger.String("content", content),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnparseableInsight, err)
	}

	var missing []string
	for _, name := range RequiredFields {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		log.Warn("Insight is missing required fields", logger.Strings("fields", missing))
	}
	if !ins.Likelihood.Valid() {
		log.Warn("Insight likelihood outside enum", logger.String("likelihood", string(ins.Likelihood)))
	}
	if !ins.ThreatScore.Valid() {
		log.Warn("Insight threat score outside enum", logger.Int("threat_score", int(ins.ThreatScore)))
	}

	return &ins, nil
}

// hasInsightField reports whether fields names at least one schema property.
// It is false for a JSON null and for an empty object.
func hasInsightField(fields map[string]json.RawMessage) bool {
	for name := range schemaProperties() {
		if _, ok := fields[name]; ok {
			return true
		}
	}
	return false
}

// stripCodeFence removes a surrounding ```json fence that text replies sometimes carry.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
