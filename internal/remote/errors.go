package remote

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// NetworkError reports that a request never produced an HTTP response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request failed: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError reports an error answer from the service: an HTTP status of
// 400 or more, or a GraphQL response carrying errors.
type ServiceError struct {
	StatusCode int
	Message    string
	// Errors holds the GraphQL error list, if any.
	Errors gqlerror.List
}

func (e *ServiceError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("service error (%d): %s", e.StatusCode, e.Errors.Error())
	}
	return fmt.Sprintf("service error (%d): %s", e.StatusCode, e.Message)
}

// Code returns the first GraphQL error code found in extensions.code, or "".
func (e *ServiceError) Code() string {
	for _, ge := range e.Errors {
		if code, ok := ge.Extensions["code"].(string); ok {
			return code
		}
	}
	return ""
}
