// Package errs tags errors with the failure category they belong to, so
// callers can branch on what went wrong (persistence vs provider vs policy)
// without string matching, while plain %w wrapping keeps working everywhere
// else.
package errs

import "errors"

// Category names one failure domain.
type Category string

const (
	Persistence Category = "persistence"
	Policy      Category = "policy"
	Budget      Category = "budget"
	Injection   Category = "injection"
	Provider    Category = "provider"
	Transport   Category = "transport"
	Config      Category = "config"
)

// Error carries a Category alongside the underlying error. It participates
// in errors.Is/As chains via Unwrap, so sentinel checks (sql.ErrNoRows,
// context.Canceled) on the wrapped error keep working.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string {
	return string(e.Category) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with c. A nil err stays nil, so call sites can wrap
// unconditionally on the return path.
func Wrap(c Category, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: c, Err: err}
}

// CategoryOf returns the outermost category tag on err's chain, or "" when
// err carries none.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}
