package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrJobNotFound is returned by the job store when no row matches an id.
	ErrJobNotFound = errors.New("job not found")
	// ErrBlobNotFound is returned by blob stores when a key is absent.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBrokerUnavailable signals a lost or unusable broker connection/channel.
	ErrBrokerUnavailable = errors.New("broker unavailable")
)

type APIError struct {
	Status  int            `json:"-"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e APIError) Error() string {
	return e.Message
}

func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// NewAPIError creates an APIError with status, message, and optional fields
func NewAPIError(status int, message string, fields map[string]any) APIError {
	return APIError{
		Status:  status,
		Message: message,
		Fields:  fields,
	}
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an APIError.
func StatusOf(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}
