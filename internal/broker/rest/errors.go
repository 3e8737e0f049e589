package rest

import (
	"errors"
	"net/http"
	"strings"

	"ladder-trading/internal/broker"
)

const (
	apiCodeOrderRejected  = 1010
	apiCodeCancelRejected = 1011
	apiCodeOrderNotFound  = 1013
)

var apiErrorMessageKinds = map[string]error{
	"duplicate order":      broker.ErrDuplicateOrder,
	"insufficient funds":   broker.ErrInsufficientFunds,
	"order does not exist": broker.ErrOrderNotFound,
}

func classifyAPIError(apiErr APIError, status int) error {
	kinds := classifyAPIErrorKinds(apiErr, status)
	if len(kinds) == 0 {
		return apiErr
	}
	errChain := make([]error, 0, 1+len(kinds))
	errChain = append(errChain, apiErr)
	errChain = append(errChain, kinds...)
	return errors.Join(errChain...)
}

func classifyAPIErrorKinds(apiErr APIError, status int) []error {
	kinds := make([]error, 0, 2)
	normalizedMsg := strings.ToLower(strings.TrimSpace(apiErr.Msg))

	if status == http.StatusTooManyRequests {
		kinds = appendErrorKind(kinds, broker.ErrRateLimited)
	}
	switch apiErr.Code {
	case apiCodeOrderNotFound, apiCodeCancelRejected:
		kinds = appendErrorKind(kinds, broker.ErrOrderNotFound)
	case apiCodeOrderRejected:
		if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
			kinds = appendErrorKind(kinds, kind)
		} else {
			kinds = appendErrorKind(kinds, broker.ErrOrderRejected)
		}
	}
	if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
		kinds = appendErrorKind(kinds, kind)
	}
	return kinds
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
