// Package apperror defines a centralized system for application-specific errors.
// Every workflow operation returns an *AppError (or wraps one), and the HTTP boundary
// turns it into a status code plus a `{"message": ...}` body. Underlying causes are kept
// for logging and never leave the process.
package apperror

import (
	"errors"
	"fmt"
	// `net/http` is used for HTTP status codes.
	"net/http"
)

// ErrorType is an enumeration (using `iota`) for different categories of application errors.
type ErrorType int

const (
	// UnknownError is for unspecified errors
	UnknownError ErrorType = iota
	// DatabaseError represents an error originating from the persistence layer
	DatabaseError
	// ConfigError represents an error related to application configuration
	ConfigError
	// AuthError represents an authentication failure: no credential, or a credential that
	// does not match (wrong password).
	AuthError
	// ForbiddenError represents an invalid token or an ownership violation.
	ForbiddenError
	// NotFoundError represents a resource not found error
	NotFoundError
	// ValidationError represents missing or malformed input
	ValidationError
	// BadRequestError represents a body that could not be decoded at all
	BadRequestError
	// InternalError represents a generic internal server error
	InternalError
	// MigrationError represents an error during database migrations
	MigrationError
	// ConflictError represents a conflict, e.g. the email is already registered
	ConflictError
	// PayloadTooLargeError represents an upload over its size limit
	PayloadTooLargeError
	// StorageError represents an asset I/O failure
	StorageError
	// CryptoError represents a hashing or signing failure
	CryptoError
	// UpdateError represents a failed record update
	UpdateError
	// CreationError represents a failed record creation
	CreationError
	// RateLimitedError represents a client that exceeded its request budget
	RateLimitedError
)

var typeNames = map[ErrorType]string{
	UnknownError:         "UnknownError",
	DatabaseError:        "DatabaseError",
	ConfigError:          "ConfigError",
	AuthError:            "AuthError",
	ForbiddenError:       "ForbiddenError",
	NotFoundError:        "NotFoundError",
	ValidationError:      "ValidationError",
	BadRequestError:      "BadRequestError",
	InternalError:        "InternalError",
	MigrationError:       "MigrationError",
	ConflictError:        "ConflictError",
	PayloadTooLargeError: "PayloadTooLargeError",
	StorageError:         "StorageError",
	CryptoError:          "CryptoError",
	UpdateError:          "UpdateError",
	CreationError:        "CreationError",
	RateLimitedError:     "RateLimitedError",
}

// String makes error types readable in logs.
func (t ErrorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// AppError is a custom error type for the application.
// It allows wrapping an underlying error (`Err`) for more detailed debugging.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error // Underlying error
}

// Error returns the string representation of the error, satisfying the `error` interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error so `errors.Is` and `errors.As` can walk the chain.
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code appropriate for the error type.
func (e *AppError) StatusCode() int {
	switch e.Type {
	case AuthError:
		// 401: the caller has not proven who they are.
		return http.StatusUnauthorized
	case ForbiddenError:
		// 403: the credential is bad, or the caller is known but not allowed.
		return http.StatusForbidden
	case NotFoundError:
		return http.StatusNotFound
	case ValidationError, ConflictError:
		// Duplicate email shares 422 with validation failures; existing clients key off it.
		return http.StatusUnprocessableEntity
	case BadRequestError:
		return http.StatusBadRequest
	case PayloadTooLargeError:
		return http.StatusRequestEntityTooLarge
	case RateLimitedError:
		return http.StatusTooManyRequests
	case DatabaseError, ConfigError, InternalError, MigrationError,
		StorageError, CryptoError, UpdateError, CreationError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsServerError reports whether the error maps to a 5xx response.
func (e *AppError) IsServerError() bool {
	return e.StatusCode() >= http.StatusInternalServerError
}

// NewAppError creates a new AppError. This is a generic constructor.
func NewAppError(errType ErrorType, message string, underlyingError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     underlyingError,
	}
}

// Constructor functions for specific error types.

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(message string, underlyingError error) *AppError {
	return NewAppError(DatabaseError, message, underlyingError)
}

// NewConfigError creates a new ConfigError
func NewConfigError(message string, underlyingError error) *AppError {
	return NewAppError(ConfigError, message, underlyingError)
}

// NewAuthError creates a new AuthError (401)
func NewAuthError(message string, underlyingError error) *AppError {
	return NewAppError(AuthError, message, underlyingError)
}

// NewForbiddenError creates a new ForbiddenError (403)
func NewForbiddenError(message string, underlyingError error) *AppError {
	return NewAppError(ForbiddenError, message, underlyingError)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(message string, underlyingError error) *AppError {
	return NewAppError(NotFoundError, message, underlyingError)
}

// NewValidationError creates a new ValidationError
func NewValidationError(message string, underlyingError error) *AppError {
	return NewAppError(ValidationError, message, underlyingError)
}

// NewBadRequestError creates a new BadRequestError
func NewBadRequestError(message string, underlyingError error) *AppError {
	return NewAppError(BadRequestError, message, underlyingError)
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, underlyingError error) *AppError {
	return NewAppError(InternalError, message, underlyingError)
}

// NewMigrationError creates a new MigrationError
func NewMigrationError(message string, underlyingError error) *AppError {
	return NewAppError(MigrationError, message, underlyingError)
}

// NewConflictError creates a new ConflictError
func NewConflictError(message string, underlyingError error) *AppError {
	return NewAppError(ConflictError, message, underlyingError)
}

// NewPayloadTooLargeError creates a new PayloadTooLargeError
func NewPayloadTooLargeError(message string, underlyingError error) *AppError {
	return NewAppError(PayloadTooLargeError, message, underlyingError)
}

// NewStorageError creates a new StorageError
func NewStorageError(message string, underlyingError error) *AppError {
	return NewAppError(StorageError, message, underlyingError)
}

// NewCryptoError creates a new CryptoError
func NewCryptoError(message string, underlyingError error) *AppError {
	return NewAppError(CryptoError, message, underlyingError)
}

// NewUpdateError creates a new UpdateError
func NewUpdateError(message string, underlyingError error) *AppError {
	return NewAppError(UpdateError, message, underlyingError)
}

// NewCreationError creates a new CreationError
func NewCreationError(message string, underlyingError error) *AppError {
	return NewAppError(CreationError, message, underlyingError)
}

// NewRateLimitedError creates a new RateLimitedError
func NewRateLimitedError(message string, underlyingError error) *AppError {
	return NewAppError(RateLimitedError, message, underlyingError)
}

// ErrorResponse represents the error payload sent to API clients.
type ErrorResponse struct {
	// `example` is a struct tag used by the Swagger documentation generator.
	Message string `json:"message" example:"Fill in all the fields."`
}

// ToResponse converts an AppError to an ErrorResponse suitable for API responses.
// Only the user-facing `Message` is included, never the underlying `Err`.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Message: e.Message}
}

// FromError attempts to convert a generic error to an *AppError, looking through wrapping.
// It returns the *AppError and true if successful, otherwise nil and false.
func FromError(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err carries an AppError of the given type anywhere in its chain.
func Is(err error, errType ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errType
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	return Is(err, NotFoundError)
}

// IsAuthError checks if an error is an AuthError (authentication problem)
func IsAuthError(err error) bool {
	return Is(err, AuthError)
}

// IsForbidden checks if an error is a ForbiddenError
func IsForbidden(err error) bool {
	return Is(err, ForbiddenError)
}

// IsValidationError checks if an error is a Validation error
func IsValidationError(err error) bool {
	return Is(err, ValidationError)
}

// IsConflictError checks if an error is a Conflict error
func IsConflictError(err error) bool {
	return Is(err, ConflictError)
}

// IsPayloadTooLarge checks if an error is a PayloadTooLarge error
func IsPayloadTooLarge(err error) bool {
	return Is(err, PayloadTooLargeError)
}
