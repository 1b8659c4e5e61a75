package errors

import (
	"fmt"
	"time"
)

// PermissionDeniedError reports a tool invocation whose capability category is
// disabled for the agent.
type PermissionDeniedError struct {
	Category string // capability category, e.g. "calendar", "terminal"
	Err      error
	Message  string
}

func (e *PermissionDeniedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permission denied for %s", e.Category)
}

func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// ValidationError reports missing or malformed tool parameters. The model may
// retry with corrected arguments.
type ValidationError struct {
	Field   string
	Err     error
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid parameter %q", e.Field)
	}
	return "invalid parameters"
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a failed entity lookup (note, list item, scheduled
// task, media title, ...).
type NotFoundError struct {
	Entity  string
	ID      string
	Err     error
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.ID != "" {
		return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Entity)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Candidate identifies one of several entities that matched an ambiguous
// lookup.
type Candidate struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// AmbiguousError reports that a by-text or by-date lookup matched more than
// one entity. The caller is expected to surface the candidates and let the
// user pick; nothing is auto-selected.
type AmbiguousError struct {
	Subject    string
	Candidates []Candidate
	Err        error
	Message    string
}

func (e *AmbiguousError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("ambiguous %s: %d candidates", e.Subject, len(e.Candidates))
}

func (e *AmbiguousError) Unwrap() error { return e.Err }

// ExternalError reports an upstream service failure. Message must already be
// safe to display; callers redact secrets before constructing it.
type ExternalError struct {
	Service    string
	StatusCode int
	Err        error
	Message    string
}

func (e *ExternalError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// ApprovalDeniedError reports that the user rejected an approval prompt.
type ApprovalDeniedError struct {
	Tool    string
	Err     error
	Message string
}

func (e *ApprovalDeniedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "user denied"
}

func (e *ApprovalDeniedError) Unwrap() error { return e.Err }

// ApprovalTimeoutError reports that an approval prompt expired unanswered.
// Timeouts deny by default.
type ApprovalTimeoutError struct {
	Tool    string
	Timeout time.Duration
	Err     error
	Message string
}

func (e *ApprovalTimeoutError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("approval timed out after %s", e.Timeout)
}

func (e *ApprovalTimeoutError) Unwrap() error { return e.Err }

// BudgetExceededError reports that the projected request cost exceeds the
// user's monthly limit. Fatal to the request.
type BudgetExceededError struct {
	ProjectedUSD float64
	LimitUSD     float64
	Err          error
	Message      string
}

func (e *BudgetExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("projected cost $%.4f exceeds monthly limit $%.2f", e.ProjectedUSD, e.LimitUSD)
}

func (e *BudgetExceededError) Unwrap() error { return e.Err }

// CancelledError reports that a stream or turn was aborted.
type CancelledError struct {
	Err     error
	Message string
}

func (e *CancelledError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "cancelled"
}

func (e *CancelledError) Unwrap() error { return e.Err }

// InternalError is the catch-all for unexpected failures. It is logged with
// redaction and surfaced as a generic string.
type InternalError struct {
	Err     error
	Message string
}

func (e *InternalError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Constructors

// NewPermissionDenied builds a PermissionDeniedError for a capability category.
func NewPermissionDenied(category, message string) *PermissionDeniedError {
	return &PermissionDeniedError{Category: category, Message: message}
}

// NewValidation builds a ValidationError for a parameter.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewNotFound builds a NotFoundError for an entity lookup.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewAmbiguous builds an AmbiguousError carrying the matched candidates.
func NewAmbiguous(subject string, candidates []Candidate) *AmbiguousError {
	return &AmbiguousError{Subject: subject, Candidates: candidates}
}

// NewExternal builds an ExternalError. message must be pre-redacted.
func NewExternal(service string, statusCode int, err error, message string) *ExternalError {
	return &ExternalError{Service: service, StatusCode: statusCode, Err: err, Message: message}
}

// NewApprovalDenied builds an ApprovalDeniedError for a tool.
func NewApprovalDenied(tool string) *ApprovalDeniedError {
	return &ApprovalDeniedError{Tool: tool}
}

// NewApprovalTimeout builds an ApprovalTimeoutError for a tool.
func NewApprovalTimeout(tool string, timeout time.Duration) *ApprovalTimeoutError {
	return &ApprovalTimeoutError{Tool: tool, Timeout: timeout}
}

// NewBudgetExceeded builds a BudgetExceededError.
func NewBudgetExceeded(projectedUSD, limitUSD float64) *BudgetExceededError {
	return &BudgetExceededError{ProjectedUSD: projectedUSD, LimitUSD: limitUSD}
}

// NewCancelled wraps err as a CancelledError.
func NewCancelled(err error) *CancelledError {
	return &CancelledError{Err: err}
}

// NewInternal wraps err as an InternalError.
func NewInternal(err error) *InternalError {
	return &InternalError{Err: err}
}
