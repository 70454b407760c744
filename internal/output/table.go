package output

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/vulnverified/nophish/internal/engine"
)

// WriteTable renders the collected evidence and, when present, the verdict
// as styled terminal tables.
func WriteTable(w io.Writer, report *engine.Report, noColor bool) {
	fmt.Fprintln(w)
	writeTable(w, []string{"Evidence", "Details"}, evidenceRows(report), noColor)

	if report.Insight == nil {
		return
	}
	fmt.Fprintln(w)
	writeTable(w, []string{"Verdict", ""}, verdictRows(report.Insight, noColor), noColor)
}

// detailWidth caps the rune length of a table cell.
const detailWidth = 100

func evidenceRows(report *engine.Report) [][]string {
	ev := report.Evidence
	return [][]string{
		{"DNS", dnsDetail(ev.DNS)},
		{"TLS", tlsDetail(ev.TLS)},
		{"WHOIS", whoisDetail(ev.WHOIS)},
		{"Page", pageDetail(ev.Page, report.Host)},
	}
}

func verdictRows(ins *engine.PhishingInsight, noColor bool) [][]string {
	rows := [][]string{
		{"Likelihood", LikelihoodText(ins.Likelihood, noColor)},
		{"Threat score", fmt.Sprintf("%d", ins.ThreatScore)},
		{"Why", truncate(ins.LikelihoodReason, detailWidth)},
		{"Phishing signals", truncate(ins.PhishingReason, detailWidth)},
		{"Safe signals", truncate(ins.SafeReason, detailWidth)},
	}
	if ins.MaliciousURL != "" && !strings.EqualFold(ins.MaliciousURL, "unknown") {
		rows = append(rows, []string{"Malicious URL", truncate(ins.MaliciousURL, detailWidth)})
	}
	return rows
}

func dnsDetail(dns engine.DNSEvidence) string {
	if len(dns) == 0 {
		return "no A or CNAME records"
	}
	var parts []string
	for _, rtype := range []string{"A", "CNAME"} {
		if vals, ok := dns[rtype]; ok {
			parts = append(parts, rtype+": "+strings.Join(vals, ", "))
		}
	}
	return truncate(strings.Join(parts, "; "), detailWidth)
}

func tlsDetail(ev engine.TLSEvidence) string {
	if ev.Certificate == nil {
		return "error: " + ev.Error
	}
	c := ev.Certificate
	return truncate(fmt.Sprintf("subject %s, issuer %s, expires %s",
		componentValue(c.Subject, "CN", "O"), componentValue(c.Issuer, "O", "CN"), c.ExpirationDate), detailWidth)
}

// componentValue returns the first present key from keys, or "-".
func componentValue(name []engine.NameComponent, keys ...string) string {
	for _, k := range keys {
		for _, c := range name {
			if c.Key == k {
				return k + "=" + c.Value
			}
		}
	}
	return "-"
}

func whoisDetail(ev engine.WHOISEvidence) string {
	if ev.ErrorMessage != "" {
		return truncate("error: "+ev.ErrorMessage, detailWidth)
	}
	var parts []string
	if ev.DomainAgeInDays != nil {
		parts = append(parts, fmt.Sprintf("%d days old", *ev.DomainAgeInDays))
	}
	if ev.Registrar != "" {
		parts = append(parts, "registrar "+ev.Registrar)
	}
	if ev.Country != "" {
		parts = append(parts, "country "+ev.Country)
	}
	if len(parts) == 0 {
		return "no registration data"
	}
	return truncate(strings.Join(parts, ", "), detailWidth)
}

func pageDetail(page *engine.RenderedPage, host string) string {
	if page == nil {
		return "not rendered"
	}
	title := page.Title
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("%q, %d forms (%d post off-site), %d links, %d scripts",
		truncate(title, 30), len(page.FormsAndActions), offsiteForms(page, host), len(page.Links), len(page.Scripts))
}

// offsiteForms counts forms whose action URL points at a different host.
func offsiteForms(page *engine.RenderedPage, host string) int {
	n := 0
	for _, f := range page.FormsAndActions {
		u, err := url.Parse(f.ActionURL)
		if err != nil || u.Hostname() == "" {
			continue
		}
		if !strings.EqualFold(u.Hostname(), host) {
			n++
		}
	}
	return n
}

func writeTable(w io.Writer, headers []string, rows [][]string, noColor bool) {
	if noColor {
		writeSimpleTable(w, headers, rows)
		return
	}

	t := table.New().
		Headers(headers...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
			}
			if col == 0 {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250"))
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
		})

	for _, row := range rows {
		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())
}

func writeSimpleTable(w io.Writer, headers []string, rows [][]string) {
	// Calculate column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, " | ")
		}
		fmt.Fprintf(w, "%-*s", widths[i], h)
	}
	fmt.Fprintln(w)

	for i, width := range widths {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", width))
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprintf(w, "%-*s", widths[i], cell)
		}
		fmt.Fprintln(w)
	}
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
