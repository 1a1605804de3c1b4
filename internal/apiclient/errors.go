package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dmclient/internal/domain"
)

// APIError is a non-2xx response. Message is safe to show to the user.
type APIError struct {
	Status  int
	Message string
	// sentinel narrows Status to a domain error for errors.Is.
	sentinel error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.sentinel
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// newAPIError builds an APIError from a response body, preferring the
// server's own wording.
func newAPIError(status int, body []byte) *APIError {
	msg := ""
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		for _, s := range []string{eb.Error, eb.Message, eb.Detail} {
			if strings.TrimSpace(s) != "" {
				msg = strings.TrimSpace(s)
				break
			}
		}
	}
	if msg == "" {
		text := http.StatusText(status)
		if text == "" {
			text = "unexpected status"
		}
		msg = fmt.Sprintf("request failed: %s (%d)", text, status)
	}

	e := &APIError{Status: status, Message: msg}
	switch status {
	case http.StatusUnauthorized:
		e.sentinel = domain.ErrUnauthorized
	case http.StatusForbidden:
		e.sentinel = domain.ErrForbidden
	case http.StatusNotFound:
		e.sentinel = domain.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		e.sentinel = domain.ErrInvalidInput
	}
	return e
}
