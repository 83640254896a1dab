package middleware

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errorBody совпадает по полям с handlers.ErrorResponse
type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, body.Error, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
