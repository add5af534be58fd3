package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultErrorMessage is used when a failed response carries no message.
const DefaultErrorMessage = "request failed"

// Error is returned for any non-2xx backend response.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("apiclient: %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of a backend failure, or 0 when err is
// not an *Error.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Message returns the text suitable for a user-visible alert.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func backendMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return DefaultErrorMessage
	}
	if m := strings.TrimSpace(body.Message); m != "" {
		return m
	}
	switch e := body.Error.(type) {
	case string:
		if strings.TrimSpace(e) != "" {
			return strings.TrimSpace(e)
		}
	case map[string]any:
		if m, ok := e["message"].(string); ok && strings.TrimSpace(m) != "" {
			return strings.TrimSpace(m)
		}
	}
	return DefaultErrorMessage
}
