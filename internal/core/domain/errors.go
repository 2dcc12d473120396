package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the core and its adapters.
var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a caller supplied malformed data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAppNotFound indicates no integration app is registered under the given ID.
	ErrAppNotFound = errors.New("app not found")

	// ErrPrecondition indicates a required argument was missing.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConfiguration indicates missing credentials or an unusable target selection.
	ErrConfiguration = errors.New("configuration error")

	// ErrVerification indicates an inbound callback failed signature or decrypt checks.
	ErrVerification = errors.New("verification failed")

	// ErrRemoteProtocol indicates the directory service answered with a non-success code.
	ErrRemoteProtocol = errors.New("remote protocol error")

	// ErrSyncRunning indicates a sync of the same app is already in progress.
	ErrSyncRunning = errors.New("sync already running")
)

// RemoteProtocolError carries the error code and message returned by the
// directory service verbatim.
type RemoteProtocolError struct {
	Code    int64
	Message string
}

func (e *RemoteProtocolError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrRemoteProtocol) match any RemoteProtocolError.
func (e *RemoteProtocolError) Is(target error) bool {
	return target == ErrRemoteProtocol
}

// Preconditionf returns an ErrPrecondition-wrapping error.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// Configurationf returns an ErrConfiguration-wrapping error.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Verificationf returns an ErrVerification-wrapping error.
func Verificationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVerification, fmt.Sprintf(format, args...))
}
