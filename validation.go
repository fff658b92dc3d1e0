package cryptvault

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// Input validation helpers

// maxUsernameLength bounds usernames so they fit the registry's u16 length prefix
const maxUsernameLength = 256

// ValidateNonce checks if a nonce has the correct size for a cipher
func ValidateNonce(nonce []byte, suite CipherSuite) error {
	if nonce == nil {
		return &ValidationError{
			Field:   "nonce",
			Message: "nonce cannot be nil",
		}
	}

	var expectedSize int
	switch suite.resolve() {
	case CipherAES256GCM, CipherChaCha20Poly1305:
		expectedSize = 12
	case CipherXSalsa20Poly1305:
		expectedSize = 24
	default:
		return &ValidationError{
			Field:   "cipher",
			Value:   suite,
			Message: "unsupported cipher suite for nonce validation",
		}
	}

	if len(nonce) != expectedSize {
		return &ValidationError{
			Field:   "nonce",
			Value:   len(nonce),
			Message: fmt.Sprintf("invalid nonce size: got %d bytes, expected %d bytes for %s", len(nonce), expectedSize, suite.resolve()),
		}
	}

	return nil
}

// ValidateKey checks if a key has the correct size
func ValidateKey(key []byte, expectedSize int) error {
	if key == nil {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be nil",
			Err:     ErrInvalidKey,
		}
	}

	if len(key) != expectedSize {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected %d bytes", len(key), expectedSize),
			Err:     ErrInvalidKey,
		}
	}

	return nil
}

// ValidateFilePath checks if a file path is valid (not empty)
func ValidateFilePath(path string) error {
	if path == "" {
		return &ValidationError{
			Field:   "path",
			Message: "file path cannot be empty",
		}
	}
	return nil
}

// ValidateUsername checks that a username can be stored in the registry
func ValidateUsername(username string) error {
	if username == "" {
		return &ValidationError{Field: "username", Message: "username cannot be empty"}
	}
	if len(username) > maxUsernameLength {
		return &ValidationError{
			Field:   "username",
			Value:   len(username),
			Message: fmt.Sprintf("username too long: got %d bytes, maximum is %d", len(username), maxUsernameLength),
		}
	}
	if !utf8.ValidString(username) {
		return &ValidationError{Field: "username", Message: "username must be valid UTF-8"}
	}
	return nil
}

// ValidatePassword checks that a password is usable for key derivation
func ValidatePassword(password []byte) error {
	if len(password) == 0 {
		return &ValidationError{Field: "password", Message: "password cannot be empty"}
	}
	return nil
}

// ValidateEntryPath checks that an archive entry path is relative,
// slash-separated and stays inside the extraction root.
func ValidateEntryPath(name string) error {
	if name == "" || name == "." {
		return ErrUnsafePath
	}
	if strings.HasPrefix(name, "/") || strings.ContainsRune(name, 0) {
		return ErrUnsafePath
	}
	if path.Clean(name) != name {
		return ErrUnsafePath
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return ErrUnsafePath
		}
	}
	return nil
}
