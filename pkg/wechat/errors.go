package wechat

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNetwork is returned when no response was received.
var ErrNetwork = errors.New("network error, please check the network connection")

// APIError is a non-zero errcode returned by the WeChat Cloud API.
type APIError struct {
	ErrCode int
	ErrMsg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat cloud API error: %s (%d)", e.ErrMsg, e.ErrCode)
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
}
