package lock

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies platform failures.
type Code string

const (
	CodeUnavailable         Code = "UNAVAILABLE"
	CodeCancelled           Code = "CANCELLED"
	CodeAuthorizationDenied Code = "AUTHORIZATION_DENIED"
	CodeNotificationsDenied Code = "NOTIFICATIONS_DENIED"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeFailed              Code = "FAILED"
)

// Error is a failure reported by the app-blocking capability.
type Error struct {
	Op      string
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Code != "" {
		b.WriteString(" (")
		b.WriteString(string(e.Code))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same Code, so errors.Is(err, ErrCancelled)
// works for errors built at the call site.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && t.Code == e.Code
}

var (
	ErrUnsupported         = &Error{Code: CodeUnavailable, Message: "app blocking is not available on this platform"}
	ErrCancelled           = &Error{Code: CodeCancelled, Message: "user cancelled"}
	ErrAuthorizationDenied = &Error{Code: CodeAuthorizationDenied, Message: "screen time authorization denied"}
	ErrNotificationsDenied = &Error{Code: CodeNotificationsDenied, Message: "notification permission denied"}
)

func opError(op string, base *Error, err error) error {
	return &Error{Op: op, Code: base.Code, Message: base.Message, Err: err}
}

func invalid(op, format string, args ...any) error {
	return &Error{Op: op, Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// IsCancelled reports whether err means the user backed out of a platform
// prompt. Bridges do not all set a code, so the message is checked too.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) && le.Code != "" {
		if le.Code == CodeCancelled {
			return true
		}
		if le.Code != CodeFailed {
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cancel")
}

// IsPermanent reports whether retrying err on this platform can never help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsDenied reports a permission denial the user can fix in system settings.
func IsDenied(err error) bool {
	return errors.Is(err, ErrAuthorizationDenied) || errors.Is(err, ErrNotificationsDenied)
}
