package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kode4food/timelock"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The escrow rejected the operation
	ExitCommandError = 2 // Bad arguments or an unreachable backend
)

// Error codes reported in CLI responses.
const (
	ErrCodeGeneric             = "E001"
	ErrCodeBackend             = "E002"
	ErrCodeArguments           = "E003"
	ErrCodeInvalidAmount       = "E101"
	ErrCodeInsufficientBalance = "E102"
	ErrCodeUnlockNotFuture     = "E103"
	ErrCodeExpireBeforeUnlock  = "E104"
	ErrCodeFundNotFound        = "E105"
	ErrCodeUnauthorized        = "E106"
	ErrCodeClaimWindowClosed   = "E107"
	ErrCodeAlreadyClaimed      = "E108"
	ErrCodeTooEarlyPayee       = "E109"
	ErrCodeTooEarlyPayer       = "E110"
	ErrCodeInvalidParticipant  = "E111"
)

// errorCodes is checked in order; ErrClaimWindowClosed also matches
// ErrUnauthorized, so it comes first.
var errorCodes = []struct {
	err  error
	code string
}{
	{timelock.ErrInvalidAmount, ErrCodeInvalidAmount},
	{timelock.ErrInsufficientBalance, ErrCodeInsufficientBalance},
	{timelock.ErrUnlockTimeNotFuture, ErrCodeUnlockNotFuture},
	{timelock.ErrExpireBeforeUnlock, ErrCodeExpireBeforeUnlock},
	{timelock.ErrFundNotFound, ErrCodeFundNotFound},
	{timelock.ErrClaimWindowClosed, ErrCodeClaimWindowClosed},
	{timelock.ErrUnauthorized, ErrCodeUnauthorized},
	{timelock.ErrAlreadyClaimed, ErrCodeAlreadyClaimed},
	{timelock.ErrTooEarlyForPayeeClaim, ErrCodeTooEarlyPayee},
	{timelock.ErrTooEarlyForPayerReclaim, ErrCodeTooEarlyPayer},
	{timelock.ErrInvalidParticipant, ErrCodeInvalidParticipant},
}

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps an escrow rejection to the code reported for it.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output, kept apart so JSON stays parseable
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
			},
		})
	}
	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return err
}

// Reject reports an error returned by the escrow and converts it into an
// ExitError carrying the matching exit code.
func (f *OutputFormatter) Reject(err error) error {
	code := ErrorCode(err)
	_ = f.Error(code, err.Error())
	if code == ErrCodeGeneric {
		return WrapExitError(ExitCommandError, code, err)
	}
	return WrapExitError(ExitFailure, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
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
