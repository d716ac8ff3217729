package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// errorBody matches the error envelope of the REST adapter, so clients see
// one shape whether a request fails in middleware or in a handler.
type errorBody struct {
	Status string `json:"status"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Timestamp int64 `json:"timestamp"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Status = "error"
	body.Error.Code = code
	body.Error.Message = message
	body.Timestamp = time.Now().Unix()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}
