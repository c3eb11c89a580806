package lint

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	fileStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	posStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Format renders violations grouped by file, followed by a summary line.
// The violations are expected in Sort order.
func Format(vs []Violation) string {
	if len(vs) == 0 {
		return okStyle.Render("no lint problems") + "\n"
	}

	posWidth := 0
	for _, v := range vs {
		if w := len(position(v)); w > posWidth {
			posWidth = w
		}
	}

	var b strings.Builder
	current := ""
	for _, v := range vs {
		if v.File != current {
			if current != "" {
				b.WriteString("\n")
			}
			current = v.File
			b.WriteString(fileStyle.Render(v.File))
			b.WriteString("\n")
		}
		pos := position(v)
		sev := warningStyle.Render(string(SeverityWarning))
		if v.Severity == SeverityError {
			sev = errorStyle.Render(string(SeverityError) + "  ")
		}
		fmt.Fprintf(&b, "  %s%s  %s  %s  %s\n",
			posStyle.Render(pos), strings.Repeat(" ", posWidth-len(pos)),
			sev, v.Message, ruleStyle.Render(v.Rule))
	}

	errs, warnings := Count(vs)
	summary := fmt.Sprintf("%d problem(s) (%d error(s), %d warning(s))", len(vs), errs, warnings)
	style := warningStyle
	if errs > 0 {
		style = errorStyle
	}
	b.WriteString("\n")
	b.WriteString(style.Bold(true).Render(summary))
	b.WriteString("\n")
	return b.String()
}

func position(v Violation) string {
	return fmt.Sprintf("%d:%d", v.Line, v.Column)
}

// WriteReport writes Format(vs) to w.
func WriteReport(w io.Writer, vs []Violation) error {
	_, err := io.WriteString(w, Format(vs))
	return err
}
