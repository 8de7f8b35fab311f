package jsbridge

import (
	"errors"
	"fmt"
)

// sessionClosedErr is the terminal signal delivered to every waiter of an
// expired or unloaded session, and the fast-fail for new operations on it.
type sessionClosedErr struct {
	err error
}

func SessionClosedError(err error) error {
	return sessionClosedErr{err: err}
}

func (e sessionClosedErr) Error() string {
	return fmt.Sprintf("session closed: %v", e.err)
}

func (e sessionClosedErr) Unwrap() error {
	return e.err
}

func IsSessionClosedErr(err error) bool {
	var e sessionClosedErr
	return errors.As(err, &e)
}
