package domain

import "fmt"

// ErrorKind classifies a domain error for transport-layer translation to an
// HTTP status. Business logic never maps a Kind to a status code itself;
// that happens in pkg/api.
type ErrorKind int

const (
	// KindInternal marks an invariant violation or unexpected failure.
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInsufficientBalance
	KindGateway
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindGateway:
		return "gateway_error"
	default:
		return "internal_error"
	}
}

// Error is the typed error every component in this module raises. Transport
// handlers inspect Kind() to pick an HTTP status; they never swallow it.
type Error struct {
	kind    ErrorKind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Kind() ErrorKind { return e.kind }

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind ErrorKind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func NewValidationError(message string) *Error { return newErr(KindValidation, message) }
func NewNotFoundError(message string) *Error    { return newErr(KindNotFound, message) }
func NewConflictError(message string) *Error    { return newErr(KindConflict, message) }
func NewInsufficientBalanceError(current, requested string) *Error {
	return newErr(KindInsufficientBalance, fmt.Sprintf("insufficient balance: have %s, need %s", current, requested))
}
func NewInternalError(message string, cause error) *Error {
	return &Error{kind: KindInternal, message: message, cause: cause}
}
func NewGatewayError(message string, cause error) *Error {
	return &Error{kind: KindGateway, message: message, cause: cause}
}

// Kind extracts the ErrorKind from err if it is (or wraps) a *Error, else
// KindInternal.
func Kind(err error) ErrorKind {
	var de *Error
	if asError(err, &de) {
		return de.kind
	}
	return KindInternal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if de, ok := err.(*Error); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
