package common

import (
	"encoding/json"
	"net/http"
)

// ErrorCodeHeader repeats the error code of a failed envelope so metrics and
// request logs can tell failures apart from successes answered with 200.
const ErrorCodeHeader = "X-Error-Code"

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a successful envelope. Fields from payload are merged next to ok=true.
func OK(w http.ResponseWriter, payload map[string]any) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["ok"] = true
	JSON(w, http.StatusOK, body)
}

// Fail reports err inside the payload. The transaction itself still succeeds so
// callers such as payment providers always receive a well-formed answer.
func Fail(w http.ResponseWriter, err error) {
	w.Header().Set(ErrorCodeHeader, CodeOf(err))
	JSON(w, http.StatusOK, map[string]any{
		"ok":    false,
		"error": errorMessage(err),
		"code":  CodeOf(err),
	})
}

// JSONError renders a middleware rejection. Unlike Fail it sets a non-200 status.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set(ErrorCodeHeader, code)
	JSON(w, status, map[string]any{
		"ok":    false,
		"error": message,
		"code":  code,
	})
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
