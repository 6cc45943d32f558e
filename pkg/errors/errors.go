package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "SLE1001"
	ErrCodeConnectionTimeout    ErrorCode = "SLE1002"
	ErrCodeAuthenticationFailed ErrorCode = "SLE1003"
	ErrCodeNetworkUnavailable   ErrorCode = "SLE1004"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound   ErrorCode = "SLE2001"
	ErrCodeConfigInvalid    ErrorCode = "SLE2002"
	ErrCodeConfigMissing    ErrorCode = "SLE2003"
	ErrCodeConfigPermission ErrorCode = "SLE2004"

	// Source and load errors (3xxx)
	ErrCodeSourceNotFound    ErrorCode = "SLE3001"
	ErrCodeSourceAccess      ErrorCode = "SLE3002"
	ErrCodeSourceMalformed   ErrorCode = "SLE3003"
	ErrCodeRegionMismatch    ErrorCode = "SLE3004"
	ErrCodeJSONPathsInvalid  ErrorCode = "SLE3005"

	// SQL execution errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "SLE4001"
	ErrCodeSQLPermission     ErrorCode = "SLE4002"
	ErrCodeSQLTimeout        ErrorCode = "SLE4003"
	ErrCodeSQLTransaction    ErrorCode = "SLE4004"
	ErrCodeSQLObjectNotFound ErrorCode = "SLE4005"
	ErrCodeSQLExecution      ErrorCode = "SLE4006"
	ErrCodeStagingFailed     ErrorCode = "SLE4007"
	ErrCodeNoResults         ErrorCode = "SLE4008"
	ErrCodeDuplicateEntry    ErrorCode = "SLE4009"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "SLE6001"
	ErrCodeInvalidInput     ErrorCode = "SLE6002"
	ErrCodeRequiredField    ErrorCode = "SLE6003"
	ErrCodeQualityCheck     ErrorCode = "SLE6004"

	// Security errors (7xxx)
	ErrCodeEncryptionFailed ErrorCode = "SLE7001"
	ErrCodeSecretNotFound   ErrorCode = "SLE7002"

	// Pipeline state errors (8xxx)
	ErrCodeInvalidState   ErrorCode = "SLE8001"
	ErrCodeRollbackFailed ErrorCode = "SLE8002"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "SLE9001"
	ErrCodeTimeout            ErrorCode = "SLE9002"
	ErrCodeResourceExhausted  ErrorCode = "SLE9003"
	ErrCodeServiceUnavailable ErrorCode = "SLE9004"
	ErrCodeCanceled           ErrorCode = "SLE9005"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL"
	SeverityError    ErrorSeverity = "ERROR"
	SeverityWarning  ErrorSeverity = "WARNING"
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError. Context of a wrapped AppError is inherited.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check your network connection",
			"Verify the warehouse endpoint and port are reachable",
			"Check security group / firewall rules for the cluster",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'starload init' to write a fresh configuration",
		)
}

// SQLError creates an SQL execution error, classifying the warehouse message.
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	detail := strings.ToLower(message)
	if cause != nil {
		detail += " " + strings.ToLower(cause.Error())
	}

	switch {
	case strings.Contains(detail, "duplicate key") || strings.Contains(detail, "unique constraint"):
		err.Code = ErrCodeDuplicateEntry
		_ = err.WithSuggestions(
			"A dimension primary key collided; check the deduplication of staged rows",
		)
	case strings.Contains(detail, "s3serviceexception") || strings.Contains(detail, "stl_load_errors") ||
		strings.Contains(detail, "region"):
		err.Code = ErrCodeStagingFailed
		_ = err.WithSuggestions(
			"Inspect STL_LOAD_ERRORS for the failing file",
			"Verify the bucket region matches the configured region",
			"Verify the IAM role can read the source prefix",
		)
	case strings.Contains(detail, "permission") || strings.Contains(detail, "access denied"):
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check the warehouse user's privileges on the target schema",
		)
	case strings.Contains(detail, "timeout") || strings.Contains(detail, "canceling statement"):
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Increase the warehouse timeout setting",
		)
	case strings.Contains(detail, "does not exist") || strings.Contains(detail, "no such table"):
		err.Code = ErrCodeSQLObjectNotFound
		_ = err.WithSuggestions(
			"Run 'starload create-tables' before loading",
		)
	case strings.Contains(detail, "syntax error"):
		err.Code = ErrCodeSQLSyntax
	}

	return err
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning)
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
