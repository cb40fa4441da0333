package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass tells a caller what to do with an error
type ErrorClass int

const (
	// ErrorTransient may succeed if retried: broker down, timeouts
	ErrorTransient ErrorClass = iota
	// ErrorInvalid is bad input: drop the message or field and carry on
	ErrorInvalid
	// ErrorFatal stops startup
	ErrorFatal
)

// String returns the lower-case class name
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Lifecycle
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")
)

// Transports and sinks
var (
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrWriteFailed        = errors.New("record write failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCircuitOpen        = errors.New("circuit breaker open")
)

// Mapping
var (
	ErrPayloadDecode    = errors.New("payload decode failed")
	ErrUnsupportedValue = errors.New("unsupported value")
	ErrInvalidData      = errors.New("invalid data format")
)

// Configuration
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// Sentinels give unclassified errors a class. Checked in order: transient,
// fatal, invalid.
var (
	transientSentinels = []error{
		ErrConnectionTimeout, ErrConnectionLost, ErrStorageUnavailable, ErrCircuitOpen,
		context.DeadlineExceeded, context.Canceled,
	}
	fatalSentinels   = []error{ErrInvalidConfig, ErrMissingConfig}
	invalidSentinels = []error{ErrPayloadDecode, ErrUnsupportedValue, ErrInvalidData}
)

// Third-party errors (paho, the influx HTTP client) carry no sentinel and
// are matched by message text.
var (
	transientPatterns = []string{"timeout", "connection", "network", "temporary", "unavailable", "broken pipe", "retry"}
	fatalPatterns     = []string{"fatal", "panic", "invalid config", "missing config"}
)

// ClassifiedError attaches a class and the failing component to an error
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	if class, ok := explicitClass(err); ok {
		return class == ErrorTransient
	}
	return isAny(err, transientSentinels) || containsAny(err, transientPatterns)
}

// IsFatal reports whether err should stop the process
func IsFatal(err error) bool {
	if class, ok := explicitClass(err); ok {
		return class == ErrorFatal
	}
	return isAny(err, fatalSentinels) || containsAny(err, fatalPatterns)
}

// IsInvalid reports whether err was caused by bad input
func IsInvalid(err error) bool {
	if class, ok := explicitClass(err); ok {
		return class == ErrorInvalid
	}
	return isAny(err, invalidSentinels)
}

// Classify returns the class of err. Unknown errors are transient.
func Classify(err error) ErrorClass {
	if class, ok := explicitClass(err); ok {
		return class
	}
	switch {
	case IsTransient(err):
		return ErrorTransient
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	}
	return ErrorTransient
}

// Wrap adds context in the form "component.method: action failed: %w".
// It returns nil for a nil err.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps err with context and marks it transient
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps err with context and marks it fatal
func WrapFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it invalid
func WrapInvalid(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, err, component, method, action)
}

func wrapClassified(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// explicitClass returns the class of the outermost ClassifiedError in err's chain
func explicitClass(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if err != nil && errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

func isAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func containsAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
