package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// ANSI color codes for severity output (used when Colored=true).
const (
	ansiReset   = "\033[0m"
	ansiBoldRed = "\033[1;31m"
	ansiRed     = "\033[0;31m"
	ansiYellow  = "\033[0;33m"
	ansiBlue    = "\033[0;34m"
)

// TableOptions controls which columns RenderTable renders and how severity is coloured.
type TableOptions struct {
	// Colored wraps severity labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeHash adds a shortened RESOURCE column with the resource hash.
	IncludeHash bool
}

// ColorSeverity wraps a severity string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorSeverity(sev models.Severity, colored bool) string {
	code := severityCode(sev)
	if !colored || code == "" {
		return string(sev)
	}
	return code + string(sev) + ansiReset
}

func severityCode(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return ansiBoldRed
	case models.SeverityHigh:
		return ansiRed
	case models.SeverityMedium:
		return ansiYellow
	case models.SeverityLow:
		return ansiBlue
	default:
		return ""
	}
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// severityCell returns the severity padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay visually aligned regardless of terminal ANSI support.
func severityCell(sev models.Severity, width int, colored bool) string {
	text := string(sev)
	code := severityCode(sev)
	if !colored || code == "" {
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// RenderTable writes a formatted findings table to w.
//
// Column order:
//
//	RULE ID  SERVICE  REGION  SEVERITY  STATUS  [RESOURCE]
func RenderTable(w io.Writer, findings []models.Finding, opts TableOptions) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	const (
		wRule     = 36
		wService  = 8
		wRegion   = 15
		wSeverity = 10
		wStatus   = 9
		wHash     = 12
	)

	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s",
		wRule, "RULE ID", wService, "SERVICE", wRegion, "REGION", wSeverity, "SEVERITY", wStatus, "STATUS")
	if opts.IncludeHash {
		header += fmt.Sprintf("  %-*s", wHash, "RESOURCE")
	}
	header = strings.TrimRight(header, " ")

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range findings {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wRule, ShortenMessage(f.RuleID, wRule)))
		rb.WriteString(fmt.Sprintf("  %-*s", wService, ShortenMessage(f.Service, wService)))
		rb.WriteString(fmt.Sprintf("  %-*s", wRegion, ShortenMessage(f.RegionOrGlobal(), wRegion)))
		rb.WriteString("  " + severityCell(f.Severity, wSeverity, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*s", wStatus, f.Status))
		if opts.IncludeHash {
			hash := f.ResourceHash
			if len(hash) > wHash {
				hash = hash[:wHash]
			}
			rb.WriteString("  " + hash)
		}
		fmt.Fprintln(w, strings.TrimRight(rb.String(), " "))
	}
}

// RenderStatus writes the run status followed by one line per region.
func RenderStatus(w io.Writer, status *models.ScanStatus) {
	fmt.Fprintf(w, "Scan:   %s\n", status.ScanID)
	fmt.Fprintf(w, "Status: %s\n\n", status.Status)

	header := fmt.Sprintf("%-15s  %-10s  %-20s  %-20s  %s", "REGION", "STATUS", "STARTED", "FINISHED", "ERROR")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))
	for _, r := range status.Regions {
		fmt.Fprintf(w, "%-15s  %-10s  %-20s  %-20s  %s\n",
			r.Region, r.Status, deref(r.StartedAt), deref(r.FinishedAt), ShortenMessage(deref(r.Error), 60))
	}
}

// RenderSummary writes severity and service totals, keys sorted.
func RenderSummary(w io.Writer, s *models.Summary) {
	fmt.Fprintf(w, "Scan:           %s\n", s.ScanID)
	fmt.Fprintf(w, "Status:         %s\n", s.Status)
	fmt.Fprintf(w, "Total findings: %d\n", s.TotalFindings)

	writeTotals(w, "By severity", s.SeverityTotals)
	writeTotals(w, "By service", s.ServiceTotals)
}

// RenderRules writes one line per catalog rule.
func RenderRules(w io.Writer, rules []models.Rule) {
	if len(rules) == 0 {
		fmt.Fprintln(w, "No rules.")
		return
	}
	header := fmt.Sprintf("%-36s  %-8s  %-10s  %s", "RULE ID", "SERVICE", "SEVERITY", "TITLE")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))
	for _, r := range rules {
		fmt.Fprintf(w, "%-36s  %-8s  %-10s  %s\n", r.ID, r.Service, r.Severity, ShortenMessage(r.Title, 70))
	}
}

func writeTotals(w io.Writer, title string, totals map[string]int) {
	if len(totals) == 0 {
		return
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-10s %d\n", k, totals[k])
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
