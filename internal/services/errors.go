package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrDecode        = errors.New("decode error")
	ErrCopy          = errors.New("copy error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureHint maps an error to the operator-facing next step logged alongside
// a failed site.
func FailureHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "check the dataset root and that site inputs exist"
	case errors.Is(err, ErrConfiguration):
		return "check the abide2nidm config file"
	case errors.Is(err, ErrTimeout):
		return "raise tools.timeout_seconds or inspect the converter for hangs"
	case errors.Is(err, ErrExternalTool):
		return "inspect the converter output in the site log"
	case errors.Is(err, ErrDecode):
		return "check the table encoding and delimiter"
	case errors.Is(err, ErrCopy):
		return "check free space and permissions on the output root"
	case errors.Is(err, ErrValidation):
		return "inspect the inputs named in the error"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
