package jsbridge

import (
	"errors"
	"fmt"
)

// remoteErr carries a browser-side exception back to the server caller whose
// evaluation triggered it, together with the offending expression text.
type remoteErr struct {
	message string
	expr    string
}

func RemoteError(message, expr string) error {
	return remoteErr{message: message, expr: expr}
}

func (e remoteErr) Error() string {
	return fmt.Sprintf("remote: %s: %s", e.message, e.expr)
}

// RemoteErrorExpr returns the expression text attached to a remote
// evaluation error, if err is one.
func RemoteErrorExpr(err error) (string, bool) {
	var e remoteErr
	if errors.As(err, &e) {
		return e.expr, true
	}
	return "", false
}

func IsRemoteErr(err error) bool {
	var e remoteErr
	return errors.As(err, &e)
}
