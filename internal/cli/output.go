package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit statuses of evtrack.
const (
	ExitSuccess = 0
	// ExitFailure: the tracker ran but an operation failed, e.g. a delivery
	// was refused or a scenario did not match its golden trace.
	ExitFailure = 1
	// ExitCommandError: evtrack could not start the operation at all, e.g.
	// bad flags, an invalid config or an unreadable store.
	ExitCommandError = 2
)

// ExitError carries the exit status a failed command should produce.
type ExitError struct {
	Code    int
	Message string
	Err     error // cause, may be nil
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit status and message to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command result to a process exit status. Errors that
// carry no ExitError count as ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// OutputFormatter writes command results as plain text or as a JSON
// Envelope, depending on --format.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // flusher lines and other diagnostics in JSON mode
	Verbose   bool
}

func newFormatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w, ErrWriter: errW, Verbose: opts.Verbose}
}

// Envelope wraps every JSON result. Status is "ok" or "error".
type Envelope struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError describes a failure. Code is a tracker or store error code
// such as DELIVERY_FAILURE, or a CLI code such as TEST_FAILED.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// Success reports a result: text in text mode, data in JSON mode.
func (f *OutputFormatter) Success(text string, data any) error {
	if !f.json() {
		_, err := fmt.Fprintln(f.Writer, text)
		return err
	}
	return json.NewEncoder(f.Writer).Encode(Envelope{Status: "ok", Data: data})
}

// Error reports a failure. Details are printed in text mode only under
// --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(Envelope{
			Status: "error",
			Error:  &EnvelopeError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// DiagWriter is where output that is not the command result goes. In JSON
// mode that is ErrWriter, so stdout stays a single Envelope.
func (f *OutputFormatter) DiagWriter() io.Writer {
	if f.json() && f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
