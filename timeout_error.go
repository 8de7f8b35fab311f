package jsbridge

import (
	"errors"
	"fmt"
)

// timeoutErr is returned by blocking waits that ran out their bound without
// an answer from the browser. Recoverable: the caller decides whether to
// reissue.
type timeoutErr struct {
	err error
}

func TimeoutError(err error) error {
	return timeoutErr{err: err}
}

func (e timeoutErr) Error() string {
	return fmt.Sprintf("timeout: %v", e.err)
}

func (e timeoutErr) Unwrap() error {
	return e.err
}

func IsTimeoutErr(err error) bool {
	var e timeoutErr
	return errors.As(err, &e)
}
