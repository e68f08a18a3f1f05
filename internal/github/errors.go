package github

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested repository or resource does not exist
var ErrNotFound = errors.New("github: resource not found")

// UpstreamError represents a non-404 failure of the GitHub API
type UpstreamError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("github: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsNotFound reports whether err represents a missing upstream resource
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
