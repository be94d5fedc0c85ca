// Package fogwellerrors contains generic errors returned by the ingestion pipeline and its collaborators.
// Callers should inspect them with errors.As / errors.Is rather than by message.
//
// If multiple errors occur in some function (e.g., several collaborators fail to close), that
// function should return an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates those individual errors.
package fogwellerrors

import (
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// ErrBufferFull is returned by a producer when every lane is at capacity and the pipeline sheds load.
var ErrBufferFull = errors.New("ingest buffer is full")

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "assetCode"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// ErrNotRunning is returned when a component is used before it has been started or after it has been stopped.
type ErrNotRunning struct {
	Component string
	Message   string
}

func (err *ErrNotRunning) Error() (s string) {
	s = fmt.Sprintf("%s is not running", err.Component)
	if err.Message != "" {
		s = s + fmt.Sprintf("; %s", err.Message)
	}
	return
}

// ErrAlreadyStarted is returned when Start is called on a component a second time.
type ErrAlreadyStarted struct {
	Component string
}

func (err *ErrAlreadyStarted) Error() string {
	return fmt.Sprintf("%s has already been started", err.Component)
}

// ErrStorage is the outcome of a single failed write to a durable store.
// The ingestion pipeline branches retry vs. discard solely on Retryable.
type ErrStorage struct {
	// Backend that produced the error, e.g., "postgres" or "redis".
	Source string
	// Human-readable description of the failure.
	Message string
	// Whether the write may safely be attempted again.
	Retryable bool
	// Underlying error, if any.
	Cause error
}

func (err *ErrStorage) Error() string {
	kind := "permanent"
	if err.Retryable {
		kind = "retryable"
	}
	s := fmt.Sprintf("%s storage error from %s: %s", kind, err.Source, err.Message)
	if err.Cause != nil {
		s = s + fmt.Sprintf("; %s", err.Cause)
	}
	return s
}

func (err *ErrStorage) Unwrap() error {
	return err.Cause
}

// NewStorageError wraps cause as an ErrStorage, classifying it as retryable when it is a network error
// or when retryable is explicitly set by the caller.
func NewStorageError(source string, cause error, retryable bool) *ErrStorage {
	msg := "write failed"
	if cause != nil {
		msg = errors.Cause(cause).Error()
	}
	return &ErrStorage{
		Source:    source,
		Message:   msg,
		Retryable: retryable || IsNetworkError(cause),
		Cause:     cause,
	}
}

// ErrMaxRetriesExceeded is returned when an operation has been attempted the maximum number of times.
type ErrMaxRetriesExceeded struct {
	Message   string
	LastError error
}

func (err *ErrMaxRetriesExceeded) Error() string {
	if err.Message != "" {
		return fmt.Sprintf("exceeded maximum number of retries; %s: %s", err.Message, err.LastError)
	}
	return fmt.Sprintf("exceeded maximum number of retries: %s", err.LastError)
}

func (err *ErrMaxRetriesExceeded) Unwrap() error {
	return err.LastError
}

// AsStorageError returns the ErrStorage in err's chain. Errors that do not carry one are reported as
// permanent failures attributed to source.
func AsStorageError(source string, err error) *ErrStorage {
	if err == nil {
		return nil
	}
	var e *ErrStorage
	if errors.As(err, &e) {
		return e
	}
	return &ErrStorage{Source: source, Message: err.Error(), Retryable: false, Cause: err}
}

// IsRetryable returns true if err carries an ErrStorage marked as retryable.
func IsRetryable(err error) bool {
	var e *ErrStorage
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsNotRunning returns true if err is (or wraps) an ErrNotRunning.
func IsNotRunning(err error) bool {
	var e *ErrNotRunning
	return errors.As(err, &e)
}

// IsInvalidArgument returns true if err is (or wraps) an ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	var e *ErrInvalidArgument
	return errors.As(err, &e)
}

// IsNetworkError returns true if err is a transport-level failure that is likely to be transient.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE, syscall.ETIMEDOUT} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// IsRetryableRedisError is largely taken from https://github.com/go-redis/redis/blob/master/error.go#L28
func IsRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	if s == "ERR max number of clients reached" {
		return true
	}
	if strings.HasPrefix(s, "LOADING ") {
		return true
	}
	if strings.HasPrefix(s, "READONLY ") {
		return true
	}
	if strings.HasPrefix(s, "CLUSTERDOWN ") {
		return true
	}
	if strings.HasPrefix(s, "TRYAGAIN ") {
		return true
	}
	return false
}
