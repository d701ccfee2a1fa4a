package errors

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
)

// Error codes for the progression engine.
const (
	// Domain errors
	ErrCodeAssignmentNotFound    = "ASSIGNMENT_NOT_FOUND"
	ErrCodeQuestNotFound         = "QUEST_NOT_FOUND"
	ErrCodeNoAssignmentToReroll  = "NO_ASSIGNMENT_TO_REROLL"
	ErrCodeRerollLimitExceeded   = "REROLL_LIMIT_EXCEEDED"
	ErrCodeQuestAlreadyCompleted = "QUEST_ALREADY_COMPLETED"
	ErrCodeQuestNotCompleted     = "QUEST_NOT_COMPLETED"
	ErrCodeQuestPoolInsufficient = "QUEST_POOL_INSUFFICIENT"
	ErrCodeAssignmentRace        = "ASSIGNMENT_RACE"

	// Database errors
	ErrCodeDatabaseError     = "DATABASE_ERROR"
	ErrCodeTransactionFailed = "TRANSACTION_FAILED"

	// Config errors
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
	ErrCodeConfigNotFound = "CONFIG_NOT_FOUND"

	// Badge errors
	ErrCodeBadgeEvaluationFailed = "BADGE_EVALUATION_FAILED"

	// Validation errors
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

// Kind groups error codes by how callers should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindInternal   Kind = "internal"
	// KindWarning marks a non-fatal consistency problem after a committed change.
	KindWarning Kind = "warning"
)

// EngineError represents an error in the progression engine.
type EngineError struct {
	Code    string
	Kind    Kind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError.
func NewEngineError(code string, kind Kind, message string, err error) *EngineError {
	return &EngineError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// As returns the first EngineError in err's chain.
func As(err error) (*EngineError, bool) {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	ee, ok := As(err)
	return ok && ee.Code == code
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if ee, ok := As(err); ok {
		return ee.Kind
	}
	return KindInternal
}

// Domain-specific error constructors

// ErrAssignmentNotFound returns an error when an assignment does not exist for the user.
func ErrAssignmentNotFound(assignmentID int64) *EngineError {
	return &EngineError{
		Code:    ErrCodeAssignmentNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("assignment not found: %d", assignmentID),
	}
}

// ErrQuestNotFound returns an error when a quest is not found.
func ErrQuestNotFound(questID int64) *EngineError {
	return &EngineError{
		Code:    ErrCodeQuestNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("quest not found: %d", questID),
	}
}

// ErrNoAssignmentToReroll returns an error when a reroll targets an empty period.
func ErrNoAssignmentToReroll(assignmentType, period string) *EngineError {
	return &EngineError{
		Code:    ErrCodeNoAssignmentToReroll,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("no %s assignment to reroll for %s", assignmentType, period),
	}
}

// ErrRerollLimitExceeded returns an error when the period's reroll was already used
// or a quest in the period set is completed.
func ErrRerollLimitExceeded(assignmentType, period string) *EngineError {
	return &EngineError{
		Code:    ErrCodeRerollLimitExceeded,
		Kind:    KindConflict,
		Message: fmt.Sprintf("%s reroll not available for %s", assignmentType, period),
	}
}

// ErrQuestAlreadyCompleted returns an error when completing an already completed assignment.
func ErrQuestAlreadyCompleted(assignmentID int64) *EngineError {
	return &EngineError{
		Code:    ErrCodeQuestAlreadyCompleted,
		Kind:    KindConflict,
		Message: fmt.Sprintf("assignment already completed: %d", assignmentID),
	}
}

// ErrQuestNotCompleted returns an error when undoing an assignment that is not completed.
func ErrQuestNotCompleted(assignmentID int64) *EngineError {
	return &EngineError{
		Code:    ErrCodeQuestNotCompleted,
		Kind:    KindConflict,
		Message: fmt.Sprintf("assignment not completed: %d", assignmentID),
	}
}

// ErrQuestPoolInsufficient returns an error when not enough quests are eligible for selection.
func ErrQuestPoolInsufficient(difficulty string, available, requested int) *EngineError {
	return &EngineError{
		Code:    ErrCodeQuestPoolInsufficient,
		Kind:    KindConflict,
		Message: fmt.Sprintf("not enough %s quests available for selection (available: %d, requested: %d)", difficulty, available, requested),
	}
}

// ErrAssignmentRace returns an error when a concurrent request created the same period set.
// It is transient: retrying reads the winner's assignments.
func ErrAssignmentRace(assignmentType, period string, err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeAssignmentRace,
		Kind:    KindTransient,
		Message: fmt.Sprintf("concurrent %s assignment for %s", assignmentType, period),
		Err:     err,
	}
}

// ErrDatabaseError wraps database errors, classifying retryable failures as transient.
func ErrDatabaseError(operation string, err error) *EngineError {
	kind := KindInternal
	if isTransientStorageError(err) {
		kind = KindTransient
	}
	return &EngineError{
		Code:    ErrCodeDatabaseError,
		Kind:    kind,
		Message: fmt.Sprintf("database error during %s", operation),
		Err:     err,
	}
}

// ErrTransactionFailed wraps begin/commit failures.
func ErrTransactionFailed(operation string, err error) *EngineError {
	kind := KindInternal
	if isTransientStorageError(err) {
		kind = KindTransient
	}
	return &EngineError{
		Code:    ErrCodeTransactionFailed,
		Kind:    kind,
		Message: fmt.Sprintf("transaction failed during %s", operation),
		Err:     err,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeConfigInvalid,
		Kind:    KindValidation,
		Message: fmt.Sprintf("invalid configuration: %s", reason),
	}
}

// ErrConfigNotFound returns an error when a config file cannot be read.
func ErrConfigNotFound(path string, err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeConfigNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("config file not found: %s", path),
		Err:     err,
	}
}

// ErrBadgeEvaluationFailed wraps a post-commit badge evaluation failure.
// The triggering change is already committed, so this is a warning.
func ErrBadgeEvaluationFailed(userID int64, err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeBadgeEvaluationFailed,
		Kind:    KindWarning,
		Message: fmt.Sprintf("badge evaluation failed for user %d", userID),
		Err:     err,
	}
}

// ErrValidationFailed returns a validation error.
func ErrValidationFailed(field, reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeValidationFailed,
		Kind:    KindValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
	}
}

// IsRetryable reports whether an operation failing with err may succeed on retry.
//
// EngineErrors are classified by Kind. Other errors fall back to storage
// error inspection.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := As(err); ok {
		return ee.Kind == KindTransient
	}
	return isTransientStorageError(err)
}

// retryablePQCodes are SQLSTATE codes for failures that a fresh transaction can clear.
var retryablePQCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"57P01": true, // admin_shutdown
	"53300": true, // too_many_connections
}

func isTransientStorageError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		// Class 08: connection exception
		if strings.HasPrefix(string(pqErr.Code), "08") {
			return true
		}
		return retryablePQCodes[pqErr.Code]
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
}
