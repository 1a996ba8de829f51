package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// Format renders the diagnostic for a terminal. Colours follow out's
// profile; pass termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))
// for plain text.
func (d *Diagnostic) Format(out *termenv.Output) string {
	style := func(s string, c termenv.Color, bold bool) string {
		st := out.String(s).Foreground(c)
		if bold {
			st = st.Bold()
		}
		return st.String()
	}

	var b strings.Builder
	b.WriteString("\n")
	if d.Code != "" {
		b.WriteString(style("ERROR ", termenv.ANSIRed, true))
		b.WriteString(style(d.Code+": ", termenv.ANSIWhite, true))
	} else {
		b.WriteString(style("ERROR: ", termenv.ANSIRed, true))
	}
	b.WriteString(d.Message)
	b.WriteString("\n\n")

	if d.Detail != "" {
		for _, line := range wrapText(d.Detail, 70) {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if d.Suggestion != "" {
		b.WriteString("  ")
		b.WriteString(style("Hint: ", termenv.ANSICyan, false))
		b.WriteString(d.Suggestion)
		b.WriteString("\n\n")
	}

	if d.DocURL != "" {
		b.WriteString("  ")
		b.WriteString(style("Learn more: ", termenv.ANSIBrightBlack, false))
		b.WriteString(style(d.DocURL, termenv.ANSIBlue, false))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatCompact returns a single-line form.
func (d *Diagnostic) FormatCompact() string {
	if d.Detail == "" {
		return d.Error()
	}
	return d.Error() + " (" + d.Detail + ")"
}

type jsonDiagnostic struct {
	Code       string   `json:"code,omitempty"`
	Category   Category `json:"category"`
	Message    string   `json:"message"`
	Detail     string   `json:"detail,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	DocURL     string   `json:"docUrl,omitempty"`
}

// MarshalJSON encodes the diagnostic without the wrapped error.
func (d *Diagnostic) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonDiagnostic{
		Code:       d.Code,
		Category:   d.Category,
		Message:    d.Message,
		Detail:     d.Detail,
		Suggestion: d.Suggestion,
		DocURL:     d.DocURL,
	})
}

func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+len(word)+1 > width {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// PrintError writes err to w, formatted when it classifies to a
// diagnostic.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprint(w, Classify(err).Format(termenv.NewOutput(w)))
}
