package internal

import (
	"net/http"

	"github.com/segmentio/encoding/json"

	"github.com/jsbridge/jsbridge"
)

type Error struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Method  string `json:"method"`
	URI     string `json:"uri"`
}

func marshalError(r *http.Request, err error) Error {
	var code int
	switch {
	case jsbridge.IsDispatchErr(err):
		code = http.StatusBadRequest
	case jsbridge.IsSessionClosedErr(err):
		code = http.StatusGone
	case jsbridge.IsTimeoutErr(err):
		code = http.StatusGatewayTimeout
	default:
		code = http.StatusInternalServerError
	}

	return Error{
		Code:    code,
		Message: err.Error(),
		Method:  r.Method,
		URI:     r.URL.Path,
	}
}

func EncodeError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	encodedError := marshalError(r, err)
	w.WriteHeader(encodedError.Code)

	_ = json.NewEncoder(w).Encode(encodedError)
}
