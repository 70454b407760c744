package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/vulnverified/nophish/internal/engine"
)

// Version is set via ldflags at build time.
var Version = "dev"

// User-facing messages.
const (
	MsgInvalidURL     = "Please enter a valid URL."
	MsgAnalysisFailed = "Failed to analyze the URL."
)

var (
	boldStyle    = lipgloss.NewStyle().Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	likelihoodFg = map[engine.Likelihood]lipgloss.Color{
		engine.LikelihoodHigh:    lipgloss.Color("196"),
		engine.LikelihoodMedium:  lipgloss.Color("214"),
		engine.LikelihoodLow:     lipgloss.Color("42"),
		engine.LikelihoodUnknown: lipgloss.Color("245"),
	}
)

// WriteHeader prints the nophish banner.
func WriteHeader(w io.Writer, noColor bool) {
	if noColor {
		fmt.Fprintf(w, "nophish %s\n\n", Version)
	} else {
		fmt.Fprintf(w, "%s\n\n", boldStyle.Render("nophish "+Version))
	}
}

// WriteSummary prints the verdict headline for a finished analysis.
func WriteSummary(w io.Writer, report *engine.Report, noColor bool) {
	label := func(s string) string {
		if noColor {
			return s
		}
		return boldStyle.Render(s)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", label("URL:"), report.URL)
	if report.Host != "" {
		fmt.Fprintf(w, "%s %s (registrable domain %s)\n", label("Host:"), report.Host, report.Domain)
	}

	if report.State == engine.StateFailed || report.Insight == nil {
		WriteFailure(w, noColor)
		return
	}

	ins := report.Insight
	fmt.Fprintf(w, "%s %s\n", label("Phishing likelihood:"), LikelihoodText(ins.Likelihood, noColor))
	fmt.Fprintf(w, "%s %d/100\n", label("Threat score:"), ins.ThreatScore)
	if ins.SecuritySummary != "" {
		fmt.Fprintf(w, "%s %s\n", label("Summary:"), ins.SecuritySummary)
	}

	if report.Truncated {
		fmt.Fprintln(w)
		msg := fmt.Sprintf("! Evidence was truncated to %d tokens before analysis", report.TokenCount)
		if noColor {
			fmt.Fprintln(w, msg)
		} else {
			fmt.Fprintln(w, warnStyle.Render(msg))
		}
	}
	if report.Evidence.Page == nil {
		msg := "! The page could not be rendered; the verdict rests on DNS, TLS and WHOIS evidence"
		if noColor {
			fmt.Fprintln(w, msg)
		} else {
			fmt.Fprintln(w, warnStyle.Render(msg))
		}
	}
}

// WriteFailure prints the generic analysis failure notice.
func WriteFailure(w io.Writer, noColor bool) {
	if noColor {
		fmt.Fprintln(w, MsgAnalysisFailed)
		return
	}
	fmt.Fprintln(w, failStyle.Render(MsgAnalysisFailed))
}

// LikelihoodText renders a likelihood, coloured by severity.
func LikelihoodText(l engine.Likelihood, noColor bool) string {
	s := string(l)
	if s == "" {
		s = string(engine.LikelihoodUnknown)
	}
	if noColor {
		return s
	}
	fg, ok := likelihoodFg[l]
	if !ok {
		fg = likelihoodFg[engine.LikelihoodUnknown]
	}
	return lipgloss.NewStyle().Bold(true).Foreground(fg).Render(s)
}
