package cryptvault

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CryptoError represents a bad key, a failed integrity check or corrupted ciphertext
type CryptoError struct {
	Operation string // "encrypt" or "decrypt"
	Path      string // File path, if applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *CryptoError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error: %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// IOError represents a file system I/O error
type IOError struct {
	Operation string // "read", "write", "mkdir", "rename", "remove", etc.
	Path      string // File path
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// FormatError represents a malformed archive, registry or key file structure
type FormatError struct {
	Kind    string // "archive", "registry" or "key file"
	Path    string // File path, if known
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("format error: %s %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("format error: %s: %s", e.Kind, e.Message)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// AuthError represents an unknown user or a wrong password
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	// The message does not say which of the two checks failed.
	return fmt.Sprintf("authentication error: %s: invalid username or password", e.Username)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ExistsError represents a duplicate username on registration
type ExistsError struct {
	Username string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("user %q already exists", e.Username)
}

func (e *ExistsError) Unwrap() error {
	return ErrUserExists
}

// Common sentinel errors
var (
	ErrInvalidKey         = errors.New("invalid encryption key")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrAuthFailed         = errors.New("authentication failed - data may be corrupted or tampered")
	ErrInvalidHeader      = errors.New("invalid file header")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrUnsupportedCipher  = errors.New("unsupported cipher suite")
	ErrNilConfig          = errors.New("config cannot be nil")
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongPassword      = errors.New("wrong password")
	ErrUserExists         = errors.New("user already exists")
	ErrSessionOpen        = errors.New("a container is already open in this session")
	ErrSessionClosed      = errors.New("no container is open in this session")
	ErrUnsafePath         = errors.New("archive entry escapes the destination")
)

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewCryptoError creates a new crypto error
func NewCryptoError(operation, path string, err error) error {
	return &CryptoError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewFormatError creates a new format error
func NewFormatError(kind, message string, err error) error {
	return &FormatError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// withPath attaches a path to crypto, format and I/O errors that lack one.
func withPath(err error, path string) error {
	switch e := err.(type) {
	case *FormatError:
		if e.Path == "" {
			c := *e
			c.Path = path
			return &c
		}
	case *CryptoError:
		if e.Path == "" {
			c := *e
			c.Path = path
			return &c
		}
	}
	return err
}

// Error checking helpers

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCryptoError checks if an error is a crypto error
func IsCryptoError(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsFormatError checks if an error is a format error
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsExistsError checks if an error is a duplicate-user error
func IsExistsError(err error) bool {
	var ee *ExistsError
	return errors.As(err, &ee)
}
