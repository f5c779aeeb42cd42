package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrSessionOpenFailed   = errors.New("session open failed")
	ErrSessionTimeout      = errors.New("session timeout")
	ErrAlreadySyncing      = errors.New("already syncing")
	ErrNoWorkToDo          = errors.New("no work to do")
	ErrObserverUnreachable = errors.New("observer unreachable")
	ErrConfiguration       = errors.New("configuration error")
	ErrTransient           = errors.New("transient failure")
)

// Kind is a coarse classification of an error used by transports to choose a
// status code or exit path.
type Kind string

const (
	KindInvalid     Kind = "invalid"
	KindUnavailable Kind = "unavailable"
	KindConflict    Kind = "conflict"
	KindNoop        Kind = "noop"
	KindFailed      Kind = "failed"
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

// Classify maps an error to the Kind callers report back to observers.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return KindInvalid
	case errors.Is(err, ErrStoreUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrAlreadySyncing):
		return KindConflict
	case errors.Is(err, ErrNoWorkToDo):
		return KindNoop
	default:
		return KindFailed
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
