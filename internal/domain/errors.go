package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so wrapped copies created
// by WithError still satisfy errors.Is against the predeclared sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing reviewer token",
		StatusCode: 401,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Access denied",
		StatusCode: 403,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many submissions, try again later",
		StatusCode: 429,
	}

	// ErrValidationFailed is the ValidationFailure of the pipeline: the
	// submission is missing media required by its tier.
	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrRequestNotFound = &AppError{
		Code:       "VERIFICATION_NOT_FOUND",
		Message:    "Verification request not found",
		StatusCode: 404,
	}

	ErrDecisionNotFound = &AppError{
		Code:       "DECISION_NOT_FOUND",
		Message:    "Verification has not been decided yet",
		StatusCode: 404,
	}

	ErrAlreadyDecided = &AppError{
		Code:       "ALREADY_DECIDED",
		Message:    "Verification already has a terminal decision",
		StatusCode: 409,
	}

	ErrInvalidTransition = &AppError{
		Code:       "INVALID_STATUS_TRANSITION",
		Message:    "Status transition not allowed",
		StatusCode: 409,
	}

	ErrNotEligible = &AppError{
		Code:       "NOT_ELIGIBLE_FOR_CREDENTIAL",
		Message:    "Only approved full_kyc verifications can be issued a credential",
		StatusCode: 422,
	}

	ErrCredentialNotFound = &AppError{
		Code:       "CREDENTIAL_NOT_FOUND",
		Message:    "Credential not found",
		StatusCode: 404,
	}

	ErrIssuanceFailed = &AppError{
		Code:       "ISSUANCE_FAILED",
		Message:    "Credential issuance is pending retry",
		StatusCode: 503,
	}

	ErrFatalConfiguration = &AppError{
		Code:       "FATAL_CONFIGURATION",
		Message:    "Required configuration is missing",
		StatusCode: 500,
	}
)
