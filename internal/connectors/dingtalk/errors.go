package dingtalk

import (
	"errors"
	"net/http"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// Error types for v1.0 API responses.
var (
	// ErrUnauthorised indicates the access token is invalid or expired.
	ErrUnauthorised = errors.New("dingtalk: unauthorised")

	// ErrForbidden indicates the app lacks permission for the resource.
	ErrForbidden = errors.New("dingtalk: forbidden")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("dingtalk: not found")

	// ErrRateLimited indicates the request was throttled.
	ErrRateLimited = errors.New("dingtalk: rate limited")

	// ErrBadRequest indicates the request was malformed.
	ErrBadRequest = errors.New("dingtalk: bad request")

	// ErrServerError indicates a server-side error.
	ErrServerError = errors.New("dingtalk: server error")
)

// WrapError converts an HTTP status code to an appropriate error.
func WrapError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorised
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		if statusCode >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// errCodeThrottled is the legacy errcode for exceeding the app call quota.
const errCodeThrottled = 90018

// envelope is the status part every legacy API response carries.
type envelope struct {
	ErrCode int64  `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// check returns a RemoteProtocolError when the code is not success.
func (e envelope) check(success int64) error {
	if e.ErrCode == success {
		return nil
	}
	return &domain.RemoteProtocolError{Code: e.ErrCode, Message: e.ErrMsg}
}

// apiError is the v1.0 error body.
type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestid"`
}

// IsThrottled reports whether err is a throttling response from either API.
func IsThrottled(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var rpe *domain.RemoteProtocolError
	return errors.As(err, &rpe) && rpe.Code == errCodeThrottled
}
