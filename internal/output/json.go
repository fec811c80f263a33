// Package output is the JSON envelope shared by the CLI and the HTTP API.
package output

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/dotcommander/pawject/internal/models"
)

// Response is the standard envelope.
type Response struct {
	Success         bool              `json:"success"`
	Data            any               `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorContext    map[string]string `json:"error_context,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

type recoverableError = models.RecoverableError

// Success wraps data in a successful response.
func Success(data any) Response {
	return Response{Success: true, Data: data}
}

// Error wraps err. Errors implementing models.RecoverableError also carry
// their code, context and suggested action.
func Error(err error) Response {
	resp := Response{Error: err.Error()}
	var re recoverableError
	if errors.As(err, &re) {
		resp.ErrorCode = re.ErrorCode()
		resp.ErrorContext = re.Context()
		resp.SuggestedAction = re.SuggestedAction()
	}
	return resp
}

// Config controls where and how responses are printed.
type Config struct {
	Writer io.Writer
	Pretty bool
}

// DefaultConfig prints to stdout, pretty when PAWJECT_PRETTY_JSON is 1 or true.
func DefaultConfig() Config {
	v := os.Getenv("PAWJECT_PRETTY_JSON")
	return Config{Writer: os.Stdout, Pretty: v == "1" || v == "true"}
}

// PrintWith encodes v according to cfg.
func PrintWith(cfg Config, v any) error {
	enc := json.NewEncoder(cfg.Writer)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Print prints v as JSON to stdout.
func Print(v any) error {
	return PrintWith(DefaultConfig(), v)
}

// PrintSuccess prints a success response.
func PrintSuccess(data any) error {
	return Print(Success(data))
}

// PrintError prints an error response.
func PrintError(err error) error {
	return Print(Error(err))
}
