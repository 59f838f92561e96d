package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies the failures the collection pipeline can encounter
type Kind string

const (
	KindAuth      Kind = "auth"       // credential/refresh rejected; fatal to the run
	KindRateLimit Kind = "rate_limit" // upstream throttling; scheduler backs off and requeues
	KindSchema    Kind = "schema"     // malformed response for one item; item dropped
	KindNotFound  Kind = "not_found"  // detail fetch 404; item dropped
	KindNetwork   Kind = "network"    // connection errors and timeouts; retried with backoff
	KindServer    Kind = "server"     // upstream 5xx; retried with backoff
	KindConfig    Kind = "config"     // empty/malformed catalog or config; fatal at startup
	KindUnknown   Kind = "unknown"
)

// Error is a classified pipeline error. Category, Term and ItemID carry the
// provenance of the unit of work that failed, so skips can be reported with
// enough context to assess coverage loss.
type Error struct {
	Kind     Kind
	Message  string
	Code     int
	Category string
	Term     string
	ItemID   string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// New creates a classified error.
func New(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Message: message, Code: code}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, code int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Code: code}
}

// WithProvenance returns a copy annotated with the (category, term) pair and
// optional item id the error occurred for.
func (e *Error) WithProvenance(category, term, itemID string) *Error {
	clone := *e
	clone.Category = category
	clone.Term = term
	clone.ItemID = itemID
	return &clone
}

// KindOf extracts the Kind from any error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether an error kind should be retried at the
// executor level. Rate limiting is deliberately excluded: its retry policy
// lives in the scheduler, which requeues the pair and backs off globally.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindServer:
		return true
	default:
		return false
	}
}

// KindForStatusCode maps an upstream HTTP status code to an error kind.
func KindForStatusCode(statusCode int) Kind {
	switch {
	case statusCode == 0:
		return KindNetwork
	case statusCode == 401 || statusCode == 403:
		return KindAuth
	case statusCode == 404:
		return KindNotFound
	case statusCode == 429:
		return KindRateLimit
	case statusCode >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}
