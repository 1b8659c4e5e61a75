package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// As and Is re-export the standard library matchers so callers need a
// single errors import.
var (
	As = errors.As
	Is = errors.Is
)

// Kind classifies an error into the runtime taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindPermissionDenied
	KindValidation
	KindNotFound
	KindAmbiguous
	KindExternal
	KindApprovalDenied
	KindApprovalTimeout
	KindBudgetExceeded
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindAmbiguous:
		return "ambiguous"
	case KindExternal:
		return "external_error"
	case KindApprovalDenied:
		return "approval_denied"
	case KindApprovalTimeout:
		return "approval_timeout"
	case KindBudgetExceeded:
		return "budget_exceeded"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// KindOf returns the taxonomy kind of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var (
		permission *PermissionDeniedError
		validation *ValidationError
		notFound   *NotFoundError
		ambiguous  *AmbiguousError
		external   *ExternalError
		denied     *ApprovalDeniedError
		timedOut   *ApprovalTimeoutError
		budget     *BudgetExceededError
		cancelled  *CancelledError
	)
	switch {
	case errors.As(err, &permission):
		return KindPermissionDenied
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &ambiguous):
		return KindAmbiguous
	case errors.As(err, &denied):
		return KindApprovalDenied
	case errors.As(err, &timedOut):
		return KindApprovalTimeout
	case errors.As(err, &budget):
		return KindBudgetExceeded
	case errors.As(err, &cancelled):
		return KindCancelled
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.As(err, &external):
		return KindExternal
	default:
		return KindInternal
	}
}

// IsCancelled reports whether err means the turn or stream was aborted.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindCancelled
}

// IsRecoverable reports whether the model could plausibly recover by retrying
// with different parameters or by choosing another approach within the same
// turn.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindAmbiguous, KindExternal:
		return true
	default:
		return false
	}
}

// IsTransient reports whether a retry of the same call might succeed. It
// drives the retry helper and the circuit breaker.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var external *ExternalError
	if errors.As(err, &external) && external.StatusCode > 0 {
		return isTransientHTTPStatus(external.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"temporarily unavailable",
		"too many requests",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// FormatForLLM converts an error into the actionable string the model
// observes in a tool result.
func FormatForLLM(err error) string {
	if err == nil {
		return ""
	}

	switch KindOf(err) {
	case KindPermissionDenied:
		var e *PermissionDeniedError
		if errors.As(err, &e) && e.Category != "" {
			return fmt.Sprintf("Permission denied: the %s capability is disabled for this agent. Suggest an alternative or ask the user to enable it.", e.Category)
		}
		return "Permission denied: this capability is disabled for this agent."
	case KindValidation:
		return fmt.Sprintf("Invalid parameters: %s. Correct the arguments and call the tool again.", err.Error())
	case KindNotFound:
		return fmt.Sprintf("%s. Verify the identifier or search first.", capitalize(err.Error()))
	case KindAmbiguous:
		var e *AmbiguousError
		if errors.As(err, &e) && len(e.Candidates) > 0 {
			var b strings.Builder
			fmt.Fprintf(&b, "Multiple matches for %s; ask the user to pick one:", e.Subject)
			for _, c := range e.Candidates {
				fmt.Fprintf(&b, "\n- %s (id: %s)", c.Label, c.ID)
			}
			return b.String()
		}
		return "Multiple matches found; ask the user to disambiguate."
	case KindExternal:
		return fmt.Sprintf("Upstream service error: %s. It may recover; consider retrying later.", err.Error())
	case KindApprovalDenied:
		return "user denied"
	case KindApprovalTimeout:
		return fmt.Sprintf("%s; treated as denied.", capitalize(err.Error()))
	case KindBudgetExceeded:
		return fmt.Sprintf("Request aborted: %s.", err.Error())
	case KindCancelled:
		return "cancelled"
	default:
		return err.Error()
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
