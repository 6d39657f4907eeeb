package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrResolution marks failures to locate or load any usable engine binary.
	ErrResolution = errors.New("resolution error")
	// ErrStrictLoad marks a strict candidate whose file exists but failed to load.
	ErrStrictLoad = errors.New("strict candidate load error")
	// ErrEngine marks native-call failures reported by the engine itself.
	ErrEngine = errors.New("engine error")
	// ErrUnexpectedTermination marks an abort status observed without a matching cancel request.
	ErrUnexpectedTermination = errors.New("unexpected native termination")
	// ErrValidation marks caller-input problems (bad preference order, empty audio).
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks problems with the on-disk configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks retryable failures with no more specific classification.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error to the short machine-readable kind reported in
// terminal task events and persisted diagnostics.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrStrictLoad):
		return "strict_load_failed"
	case errors.Is(err, ErrResolution):
		return "no_usable_binary"
	case errors.Is(err, ErrUnexpectedTermination):
		return "unexpected_termination"
	case errors.Is(err, ErrEngine):
		return "engine_error"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "transient"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
