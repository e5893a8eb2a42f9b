package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	ErrCodeSourceFailed  = "SOURCE_FAILED"
	ErrCodeBlocked       = "BLOCKED"
	ErrCodeTimeout       = "FETCH_TIMEOUT"
	ErrCodeBrowserCrash  = "BROWSER_CRASH"
	ErrCodeValidation    = "VALIDATION_FAILED"
	ErrCodeStore         = "STORE_FAILED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeShuttingDown  = "SHUTTING_DOWN"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// ScrapeError is the internal error type carrying an error code.
type ScrapeError struct {
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message, Details: e.Details}
}
