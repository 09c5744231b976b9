package cloudbase

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNetwork is returned when no response was received.
var ErrNetwork = errors.New("network error, please check the network connection")

// APIError is a CloudBase business or HTTP error.
type APIError struct {
	// Status is the HTTP status; zero for business errors on a 2xx response.
	Status    int
	Code      int
	Message   string
	RequestID string

	prefixed bool
}

func (e *APIError) Error() string {
	if e.Status == 0 || e.prefixed {
		return e.Message
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, msg)
}

type errorBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

func newHTTPError(status int, raw []byte) *APIError {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	apiErr := &APIError{Status: status, Code: body.Code, RequestID: body.RequestID}
	if apiErr.Code == 0 {
		apiErr.Code = status
	}
	switch {
	case body.Message != "":
		apiErr.Message = body.Message
	case body.Error != "":
		apiErr.Message = body.Error
	}
	return apiErr
}

// IsUnauthorized reports whether err is an HTTP 401 from CloudBase.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsNotFound reports whether err is an HTTP 404 from CloudBase.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
