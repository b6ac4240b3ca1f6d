package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
)

// Category represents the type of error.
type Category string

const (
	CategoryRuntime    Category = "runtime"
	CategoryManifest   Category = "manifest"
	CategoryExpression Category = "expression"
	CategoryScenario   Category = "scenario"
	CategoryConfig     Category = "config"
	CategoryCLI        Category = "cli"
)

// Location represents a position in a manifest, scenario or config file.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// String returns the location as file:line[:column].
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Line <= 0 {
		return l.File
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// DeriveError is a structured error with a code, source location and hints
// for the derive tooling.
type DeriveError struct {
	// Code is a unique error identifier (e.g., "D101").
	Code string

	// Category groups codes (manifest, expression, ...).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Subject names what the error is about: a computed property, a watch
	// key, a scenario step.
	Subject string

	// Location is the file position the error refers to.
	Location *Location

	// Context holds the file lines around Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows a corrected snippet.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *DeriveError) Error() string {
	msg := e.Message
	if e.Subject != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Subject)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Location != nil {
		msg = e.Location.String() + ": " + msg
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DeriveError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file position and reads the surrounding lines.
func (e *DeriveError) WithLocation(file string, line, column int) *DeriveError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithSubject names the entry the error is about.
func (e *DeriveError) WithSubject(s string) *DeriveError {
	e.Subject = s
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *DeriveError) WithSuggestion(s string) *DeriveError {
	e.Suggestion = s
	return e
}

// WithExample adds a corrected snippet to the error.
func (e *DeriveError) WithExample(ex string) *DeriveError {
	e.Example = ex
	return e
}

// WithDetail replaces the detailed explanation.
func (e *DeriveError) WithDetail(d string) *DeriveError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *DeriveError) Wrap(err error) *DeriveError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	if filename == "" || targetLine <= 0 {
		return nil
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := max(targetLine-contextSize/2, 1)
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

// New creates a DeriveError from a registered error code.
func New(code string) *DeriveError {
	template, ok := registry[code]
	if !ok {
		return &DeriveError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &DeriveError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new DeriveError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *DeriveError {
	return &DeriveError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a DeriveError. An error that already
// carries a DeriveError anywhere in its chain is returned as that error.
func FromError(err error, code string) *DeriveError {
	if err == nil {
		return nil
	}
	var de *DeriveError
	if stderrors.As(err, &de) {
		return de
	}
	return New(code).Wrap(err)
}
