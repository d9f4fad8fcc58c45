package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the node could not complete the operation
	ExitCommandError = 2 // bad flags, unreadable input or invalid config
)

// Error codes carried in JSON envelopes.
const (
	CodeCommand  = "E_COMMAND"
	CodeFailure  = "E_FAILURE"
	CodeScenario = "E_SCENARIO"
)

// ExitError is a command failure with the exit code main should use.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ErrorCode maps the exit code onto the envelope error code.
func (e *ExitError) ErrorCode() string {
	if e.Code == ExitCommandError {
		return CodeCommand
	}
	return CodeFailure
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Envelope is the JSON document commands print in --format json.
type Envelope struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError describes a failed report.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Printer renders command output.
//
// Reports honour --format. Wire payloads (vectors and event batches) are
// always bare JSON so they can be piped from one node into another.
// Diagnostics go to stderr and only under --verbose.
type Printer struct {
	out     io.Writer
	diag    io.Writer
	json    bool
	verbose bool
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
		json:    opts.Format == "json",
		verbose: opts.Verbose,
	}
}

// Report prints data in an ok envelope, or calls text in text mode.
func (p *Printer) Report(data any, text func(w io.Writer)) error {
	if !p.json {
		text(p.out)
		return nil
	}
	return json.NewEncoder(p.out).Encode(Envelope{Status: "ok", Data: data})
}

// ReportError prints data in an error envelope. Text mode prints nothing;
// the caller has already rendered its own summary.
func (p *Printer) ReportError(data any, code, message string) error {
	if !p.json {
		return nil
	}
	return json.NewEncoder(p.out).Encode(Envelope{
		Status: "error",
		Data:   data,
		Error:  &EnvelopeError{Code: code, Message: message},
	})
}

// Wire prints data as indented JSON without an envelope.
func (p *Printer) Wire(data any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Debugf prints a diagnostic line when verbose output is on.
func (p *Printer) Debugf(format string, args ...any) {
	if p.verbose {
		fmt.Fprintf(p.diag, format+"\n", args...)
	}
}
