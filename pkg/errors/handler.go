package errors

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrorHandler records errors, logs them structurally and renders them for the terminal
type ErrorHandler struct {
	mu         sync.Mutex
	out        io.Writer
	logger     *zap.Logger
	errorLog   []ErrorLogEntry
	maxEntries int
}

// ErrorLogEntry represents a logged error
type ErrorLogEntry struct {
	Timestamp   time.Time              `json:"timestamp"`
	Code        ErrorCode              `json:"code"`
	Severity    ErrorSeverity          `json:"severity"`
	Message     string                 `json:"message"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Recoverable bool                   `json:"recoverable"`
}

// NewErrorHandler creates a new error handler writing user-facing output to out
func NewErrorHandler(out io.Writer, logger *zap.Logger) *ErrorHandler {
	if out == nil {
		out = os.Stderr
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		out:        out,
		logger:     logger,
		errorLog:   make([]ErrorLogEntry, 0),
		maxEntries: 1000,
	}
}

// Handle records and logs an error
func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	appErr := asAppError(err)

	entry := ErrorLogEntry{
		Timestamp:   appErr.Timestamp,
		Code:        appErr.Code,
		Severity:    appErr.Severity,
		Message:     appErr.Message,
		Context:     appErr.Context,
		Recoverable: appErr.Recoverable,
	}

	h.mu.Lock()
	h.errorLog = append(h.errorLog, entry)
	if len(h.errorLog) > h.maxEntries {
		h.errorLog = h.errorLog[1:]
	}
	h.mu.Unlock()

	fields := []zap.Field{
		zap.String("code", string(appErr.Code)),
		zap.String("severity", string(appErr.Severity)),
		zap.Bool("recoverable", appErr.Recoverable),
	}
	for k, v := range appErr.Context {
		fields = append(fields, zap.Any(k, v))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.NamedError("cause", appErr.Cause))
	}

	switch appErr.Severity {
	case SeverityWarning:
		h.logger.Warn(appErr.Message, fields...)
	case SeverityInfo:
		h.logger.Info(appErr.Message, fields...)
	default:
		h.logger.Error(appErr.Message, fields...)
	}
}

// Display writes a user-friendly rendering of err
func (h *ErrorHandler) Display(err error) {
	if err == nil {
		return
	}
	appErr := asAppError(err)

	fmt.Fprintf(h.out, "\n[%s] %s\n", appErr.Code, appErr.Message)
	if appErr.Cause != nil {
		fmt.Fprintf(h.out, "  cause: %v\n", appErr.Cause)
	}

	if len(appErr.Context) > 0 {
		keys := make([]string, 0, len(appErr.Context))
		for k := range appErr.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(h.out, "\nContext:")
		for _, k := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", k, appErr.Context[k])
		}
	}

	if len(appErr.Suggestions) > 0 {
		fmt.Fprintln(h.out, "\nSuggestions:")
		for i, suggestion := range appErr.Suggestions {
			fmt.Fprintf(h.out, "  %d. %s\n", i+1, suggestion)
		}
	}
}

// GetErrorSummary returns counts of recorded errors by code
func (h *ErrorHandler) GetErrorSummary() map[ErrorCode]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	summary := make(map[ErrorCode]int)
	for _, entry := range h.errorLog {
		summary[entry.Code]++
	}
	return summary
}

// Entries returns a copy of the recorded errors
func (h *ErrorHandler) Entries() []ErrorLogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ErrorLogEntry, len(h.errorLog))
	copy(out, h.errorLog)
	return out
}

func asAppError(err error) *AppError {
	appErr, ok := err.(*AppError)
	if !ok {
		appErr = Wrap(err, ErrCodeInternal, err.Error())
	}
	return appErr
}

// TransactionHandler manages error handling for a transaction
type TransactionHandler struct {
	handler      *ErrorHandler
	rollbackFunc func() error
	committed    bool
}

// NewTransactionHandler creates a new transaction handler
func (h *ErrorHandler) NewTransactionHandler(rollbackFunc func() error) *TransactionHandler {
	return &TransactionHandler{
		handler:      h,
		rollbackFunc: rollbackFunc,
	}
}

// Execute runs fn and rolls back when it fails. A failed rollback is attached
// to the returned error's context.
func (th *TransactionHandler) Execute(fn func() error) error {
	err := fn()
	if err == nil {
		th.committed = true
		return nil
	}

	th.handler.Handle(err)

	if th.rollbackFunc != nil && !th.committed {
		if rollbackErr := th.rollbackFunc(); rollbackErr != nil {
			wrapped := Wrap(rollbackErr, ErrCodeRollbackFailed, "Failed to rollback transaction")
			th.handler.Handle(wrapped)
			if appErr, ok := err.(*AppError); ok {
				_ = appErr.WithContext("rollback_error", rollbackErr.Error())
			}
		} else {
			th.handler.logger.Info("transaction rolled back")
		}
	}

	return err
}

// Committed reports whether Execute completed without error
func (th *TransactionHandler) Committed() bool {
	return th.committed
}

var globalHandler *ErrorHandler
var globalHandlerOnce sync.Once

// GetGlobalErrorHandler returns the process-wide error handler, logging through zap's global logger
func GetGlobalErrorHandler() *ErrorHandler {
	globalHandlerOnce.Do(func() {
		globalHandler = NewErrorHandler(os.Stderr, zap.L())
	})
	return globalHandler
}
