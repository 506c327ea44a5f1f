package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
)

// contextLines is how many lines around a Location are shown.
const contextLines = 5

// Category represents the type of error.
type Category string

const (
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
	CategoryServer   Category = "server"
	CategoryProtocol Category = "protocol"
)

// Location represents a position in a file, usually telegraph.toml.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Line == 0 {
		return l.File
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// TelegraphError is a structured error with an optional file location and a
// suggestion on how to fix it.
type TelegraphError struct {
	// Code is a unique error identifier (e.g., "T101").
	Code string

	// Category is the error type (config, cli, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred.
	Location *Location

	// Context contains the lines surrounding Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example is a snippet showing the correct form.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *TelegraphError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TelegraphError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file location to the error and loads the surrounding
// lines when the file is readable.
func (e *TelegraphError) WithLocation(file string, line, column int) *TelegraphError {
	e.Location = &Location{File: file, Line: line, Column: column}
	if line > 0 {
		e.Context = readContextLines(file, line, contextLines)
	}
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *TelegraphError) WithSuggestion(s string) *TelegraphError {
	e.Suggestion = s
	return e
}

// WithExample adds an example snippet to the error.
func (e *TelegraphError) WithExample(ex string) *TelegraphError {
	e.Example = ex
	return e
}

// WithDetail replaces the detailed explanation of the error.
func (e *TelegraphError) WithDetail(d string) *TelegraphError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *TelegraphError) Wrap(err error) *TelegraphError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a TelegraphError from a registered error code.
func New(code string) *TelegraphError {
	template, ok := registry[code]
	if !ok {
		return &TelegraphError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &TelegraphError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new TelegraphError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *TelegraphError {
	return &TelegraphError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a TelegraphError. Errors that already
// are, or wrap, a TelegraphError are returned unchanged.
func FromError(err error, code string) *TelegraphError {
	if err == nil {
		return nil
	}
	if te, ok := As(err); ok {
		return te
	}
	return New(code).Wrap(err)
}

// As reports whether err is, or wraps, a TelegraphError.
func As(err error) (*TelegraphError, bool) {
	var te *TelegraphError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}
