package api

import (
	"net/http"

	"github.com/segmentio/encoding/json"
)

func HealthCheckHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode("Running!")
	})
}
