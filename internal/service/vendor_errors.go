package service

import (
	"errors"

	"github.com/noah-isme/cloudblog-api/pkg/cloudbase"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
	"github.com/noah-isme/cloudblog-api/pkg/wechat"
)

// UpstreamError maps CloudBase and WeChat failures onto application errors.
// Errors that are already typed pass through unchanged.
func UpstreamError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, cloudbase.ErrNetwork) || errors.Is(err, wechat.ErrNetwork) {
		return appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, appErrors.ErrNetwork.Message)
	}

	var cbErr *cloudbase.APIError
	if errors.As(err, &cbErr) {
		return &appErrors.Error{Code: appErrors.ErrUpstream.Code, Status: appErrors.ErrUpstream.Status, Message: cbErr.Error(), Err: err}
	}
	var wxErr *wechat.APIError
	if errors.As(err, &wxErr) {
		return &appErrors.Error{Code: appErrors.ErrUpstream.Code, Status: appErrors.ErrUpstream.Status, Message: wxErr.Error(), Err: err}
	}
	var httpErr *wechat.HTTPError
	if errors.As(err, &httpErr) {
		return &appErrors.Error{Code: appErrors.ErrUpstream.Code, Status: appErrors.ErrUpstream.Status, Message: httpErr.Error(), Err: err}
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
