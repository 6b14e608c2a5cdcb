package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a fault raised by the offline controller.
type Kind string

const (
	KindStorage        Kind = "STORAGE"         // quota exhausted or backend unavailable
	KindNetwork        Kind = "NETWORK"         // connectivity loss or non-success upstream status
	KindInstall        Kind = "INSTALL"         // manifest pre-population failed
	KindMisconfigured  Kind = "MISCONFIGURED"   // shell and offline document both missing
	KindInvalidMessage Kind = "INVALID_MESSAGE" // control message payload could not be decoded
)

// Fault is a classified error carrying the operation that failed and the HTTP status to surface.
type Fault struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", f.Kind, f.Op, f.Message, f.Err)
	}
	return fmt.Sprintf("%s %s: %s", f.Kind, f.Op, f.Message)
}

// Unwrap exposes the underlying cause.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Storage wraps a storage-layer failure.
func Storage(op string, err error) *Fault {
	return &Fault{
		Kind:    KindStorage,
		Op:      op,
		Status:  http.StatusInsufficientStorage,
		Message: "cache storage failure",
		Err:     err,
	}
}

// Network wraps a failed upstream fetch.
func Network(op string, err error) *Fault {
	return &Fault{
		Kind:    KindNetwork,
		Op:      op,
		Status:  http.StatusBadGateway,
		Message: "network request failed",
		Err:     err,
	}
}

// Install reports a manifest URL that could not be pre-populated.
func Install(url string, err error) *Fault {
	return &Fault{
		Kind:    KindInstall,
		Op:      "install",
		Status:  http.StatusServiceUnavailable,
		Message: fmt.Sprintf("cannot pre-populate %s", url),
		Err:     err,
	}
}

// Misconfigured reports a missing install artifact.
func Misconfigured(op, msg string) *Fault {
	return &Fault{
		Kind:    KindMisconfigured,
		Op:      op,
		Status:  http.StatusServiceUnavailable,
		Message: msg,
	}
}

// InvalidMessage reports a control message whose payload does not match its action.
func InvalidMessage(action string, err error) *Fault {
	return &Fault{
		Kind:    KindInvalidMessage,
		Op:      action,
		Status:  http.StatusBadRequest,
		Message: "invalid message payload",
		Err:     err,
	}
}

// Is reports whether err (or anything it wraps) is a Fault of the given kind.
func Is(err error, kind Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

// StatusOf returns the HTTP status associated with err, or 500 for unclassified errors.
func StatusOf(err error) int {
	var f *Fault
	if errors.As(err, &f) && f.Status != 0 {
		return f.Status
	}
	return http.StatusInternalServerError
}
