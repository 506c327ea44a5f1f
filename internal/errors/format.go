package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ANSI escape sequences used by the terminal renderer.
const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiBlue  = "\033[34m"
	ansiCyan  = "\033[36m"
	ansiWhite = "\033[37m"
	ansiGray  = "\033[90m"
	ansiBold  = "\033[1m"
)

// detailWidth is the column at which Detail text is wrapped.
const detailWidth = 70

var colorEnabled = true

// DisableColors turns off ANSI sequences in Format output.
func DisableColors() { colorEnabled = false }

// EnableColors turns ANSI sequences back on.
func EnableColors() { colorEnabled = true }

func paint(seq, text string) string {
	if !colorEnabled {
		return text
	}
	return seq + text + ansiReset
}

func red(text string) string   { return paint(ansiRed, text) }
func blue(text string) string  { return paint(ansiBlue, text) }
func cyan(text string) string  { return paint(ansiCyan, text) }
func white(text string) string { return paint(ansiWhite, text) }
func gray(text string) string  { return paint(ansiGray, text) }
func bold(text string) string  { return paint(ansiBold, text) }

// Format renders the error as a multi-line block for a terminal: a header,
// the source excerpt around Location, then detail, hint, example and cause.
func (e *TelegraphError) Format() string {
	var b strings.Builder
	b.WriteString("\n")
	e.writeHeader(&b)
	e.writeSource(&b)
	e.writeNotes(&b)
	return b.String()
}

func (e *TelegraphError) writeHeader(b *strings.Builder) {
	if e.Code == "" {
		fmt.Fprintf(b, "%s%s\n\n", red(bold("ERROR: ")), white(e.Message))
		return
	}
	fmt.Fprintf(b, "%s%s%s\n\n", red(bold("ERROR ")), white(bold(e.Code+": ")), white(e.Message))
}

func (e *TelegraphError) writeSource(b *strings.Builder) {
	if e.Location == nil {
		return
	}
	fmt.Fprintf(b, "  %s\n\n", cyan(e.Location.String()))
	if len(e.Context) == 0 {
		return
	}

	first := max(e.Location.Line-contextLines/2, 1)
	for i, text := range e.Context {
		n := first + i
		if n != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", n, gray(" │ "), text)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", red("→ "), n, gray(" │ "), text)
		if col := e.Location.Column; col > 0 {
			// Aligns under the gutter: "  → " plus four digits plus " ".
			fmt.Fprintf(b, "%s%s%s%s\n", strings.Repeat(" ", 9), gray("│ "), strings.Repeat(" ", col-1), red("^"))
		}
	}
	b.WriteString("\n")
}

func (e *TelegraphError) writeNotes(b *strings.Builder) {
	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, detailWidth) {
			fmt.Fprintf(b, "  %s\n", line)
		}
		b.WriteString("\n")
	}

	if e.Suggestion != "" {
		fmt.Fprintf(b, "  %s%s\n\n", cyan("Hint: "), e.Suggestion)
	}

	if e.Example != "" {
		fmt.Fprintf(b, "  %s\n", cyan("Example:"))
		for _, line := range strings.Split(e.Example, "\n") {
			fmt.Fprintf(b, "    %s\n", line)
		}
		b.WriteString("\n")
	}

	if e.Wrapped != nil {
		fmt.Fprintf(b, "  %s%s\n", gray("Caused by: "), blue(e.Wrapped.Error()))
	}
}

// Report is the machine-readable form of an error, as written by
// PrintErrorJSON.
type Report struct {
	Code       string    `json:"code,omitempty"`
	Category   Category  `json:"category,omitempty"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	Location   *Location `json:"location,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	Cause      string    `json:"cause,omitempty"`
}

// Report returns the error's machine-readable form.
func (e *TelegraphError) Report() Report {
	r := Report{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Location:   e.Location,
		Suggestion: e.Suggestion,
	}
	if e.Wrapped != nil {
		r.Cause = e.Wrapped.Error()
	}
	return r
}

// MarshalJSON encodes the error as its Report.
func (e *TelegraphError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Report())
}

// wrapText breaks text on word boundaries so no line exceeds width, except
// for single words longer than width.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}

	var (
		lines []string
		line  string
	)
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) > width:
			lines = append(lines, line)
			line = word
		default:
			line += " " + word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// PrintError writes err to w for a terminal. A wrapped TelegraphError is
// rendered with Format; anything else gets a plain ERROR line.
func PrintError(w io.Writer, err error) {
	if te, ok := As(err); ok {
		fmt.Fprint(w, te.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", red(bold("ERROR:")), err.Error())
}

// PrintErrorJSON writes err to w as a single JSON object followed by a
// newline. Errors that are not TelegraphErrors carry only a message.
func PrintErrorJSON(w io.Writer, err error) {
	r := Report{Message: err.Error()}
	if te, ok := As(err); ok {
		r = te.Report()
	}
	// Report holds only strings and ints, so encoding cannot fail.
	_ = json.NewEncoder(w).Encode(r)
}
