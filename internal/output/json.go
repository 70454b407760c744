package output

import (
	"encoding/json"
	"io"

	"github.com/vulnverified/nophish/internal/engine"
)

// WriteJSON writes the analysis report as indented JSON to w.
func WriteJSON(w io.Writer, report *engine.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(report)
}
