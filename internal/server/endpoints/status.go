package endpoints

import (
	"errors"
	"net/http"

	"github.com/agubarev/orgkeeper/pkg/membership"
)

// ErrMalformedRequest is returned for requests that can't be decoded
var ErrMalformedRequest = errors.New("malformed request")

var statuses = map[membership.Kind]int{
	membership.KindNotFound:               http.StatusNotFound,
	membership.KindConflict:               http.StatusConflict,
	membership.KindInvalidDomain:          http.StatusBadRequest,
	membership.KindReservedAttributeWrite: http.StatusBadRequest,
	membership.KindEmptyDomainSet:         http.StatusBadRequest,
	membership.KindInvalid:                http.StatusBadRequest,
	membership.KindStorageUnavailable:     http.StatusServiceUnavailable,
}

// StatusOf maps an operation outcome to an HTTP status
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if errors.Is(err, ErrMalformedRequest) {
		return http.StatusBadRequest
	}

	if code, ok := statuses[membership.KindOf(err)]; ok {
		return code
	}

	return http.StatusInternalServerError
}

// KindOf names the outcome kind of err
func KindOf(err error) string {
	if errors.Is(err, ErrMalformedRequest) {
		return membership.KindInvalid.String()
	}

	return membership.KindOf(err).String()
}
