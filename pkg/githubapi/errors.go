package githubapi

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRepo = errors.New("invalid repository, expected OWNER/REPO")
	ErrNoToken     = errors.New("no GitHub token configured")
)

// APIError is a non-2xx response of the GitHub REST API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s %s: status code: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == 404
}

// IsRateLimited reports whether err is a primary (403) or secondary (429) rate limit.
func IsRateLimited(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(ae.Message)
	return ae.StatusCode == 403 && (strings.Contains(msg, "rate limit") || strings.Contains(msg, "abuse detection"))
}
