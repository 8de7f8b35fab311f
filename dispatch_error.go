package jsbridge

import (
	"errors"
	"fmt"
)

// dispatchErr marks inbound requests that are malformed or reference an
// unknown method, property or task.
type dispatchErr struct {
	err error
}

func DispatchError(err error) error {
	return dispatchErr{err: err}
}

func (e dispatchErr) Error() string {
	return fmt.Sprintf("dispatch: %v", e.err)
}

func (e dispatchErr) Unwrap() error {
	return e.err
}

func IsDispatchErr(err error) bool {
	var e dispatchErr
	return errors.As(err, &e)
}
