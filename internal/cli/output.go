package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/chronicle/internal/cursor"
	"github.com/roach88/chronicle/internal/query"
	"github.com/roach88/chronicle/internal/store"
)

// Process exit codes of the chronicle binary.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Store failure, missing object, drift detected
	ExitCommandError = 2 // Bad input: flags, cursor, query, update lines
)

// Codes reported in the error envelope; classify picks one per failure.
const (
	CodeCursor   = "E_CURSOR"
	CodeQuery    = "E_QUERY"
	CodeInput    = "E_INPUT"
	CodeNotFound = "E_NOT_FOUND"
	CodeStore    = "E_STORE"
	CodeDrift    = "E_DRIFT"
)

// ExitError carries the process exit code main passes to os.Exit after a
// command has already reported the failure on its output.
type ExitError struct {
	Code    int // ExitFailure or ExitCommandError
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError with no underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to a store or query error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure for
// errors no command classified.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps an error to its response code and exit code.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, cursor.ErrInvalidCursor):
		return CodeCursor, ExitCommandError
	case errors.Is(err, query.ErrInvalidQuery):
		return CodeQuery, ExitCommandError
	case errors.Is(err, store.ErrInvalidUpdate):
		return CodeInput, ExitCommandError
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound, ExitFailure
	default:
		return CodeStore, ExitFailure
	}
}

// OutputFormatter writes command results either as the JSON envelope or as
// plain text lines, depending on --format.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose lines; Writer when nil
	Verbose   bool
}

// CLIResponse is the envelope every --format json invocation prints: a page,
// an object or a report under data, or a CLIError.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command. Details are printed in text mode only
// under --verbose.
type CLIError struct {
	Code    string `json:"code"` // E_CURSOR, E_QUERY, ...
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success prints data inside an "ok" envelope, or via its String method in
// text mode.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error prints an "error" envelope, or an "Error [code]: message" line.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	if writeErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), nil); writeErr != nil {
		return writeErr
	}
	return WrapExitError(exit, message, err)
}

// VerboseLog prints progress lines under --verbose. They go to ErrWriter so a
// JSON envelope on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
