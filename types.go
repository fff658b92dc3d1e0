package cryptvault

import (
	"errors"
	"os"

	"go.uber.org/zap"
)

// CipherSuite represents the encryption algorithm to use
type CipherSuite uint8

const (
	// CipherAuto automatically selects the best cipher based on hardware capabilities
	CipherAuto CipherSuite = iota
	// CipherAES256GCM uses AES-256 with Galois/Counter Mode
	CipherAES256GCM
	// CipherChaCha20Poly1305 uses ChaCha20 stream cipher with Poly1305 MAC
	CipherChaCha20Poly1305
	// CipherXSalsa20Poly1305 uses NaCl secretbox (XSalsa20 with Poly1305 MAC)
	CipherXSalsa20Poly1305
)

// String returns the string representation of the cipher suite
func (c CipherSuite) String() string {
	switch c {
	case CipherAuto:
		return "auto"
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherChaCha20Poly1305:
		return "chacha20-poly1305"
	case CipherXSalsa20Poly1305:
		return "xsalsa20-poly1305"
	default:
		return "unknown"
	}
}

// resolve maps CipherAuto onto a concrete suite.
func (c CipherSuite) resolve() CipherSuite {
	if c == CipherAuto {
		return CipherAES256GCM
	}
	return c
}

// KDFAlgorithm identifies the password key derivation function used for key files
type KDFAlgorithm uint8

const (
	// KDFArgon2id derives keys with Argon2id (recommended)
	KDFArgon2id KDFAlgorithm = iota + 1
	// KDFPBKDF2 derives keys with PBKDF2; the hash is chosen by PBKDF2Params.HashFunc
	KDFPBKDF2
)

// String returns the string representation of the KDF algorithm
func (k KDFAlgorithm) String() string {
	switch k {
	case KDFArgon2id:
		return "argon2id"
	case KDFPBKDF2:
		return "pbkdf2"
	default:
		return "unknown"
	}
}

// HashFunc represents hash function types for PBKDF2
type HashFunc uint8

const (
	// SHA256 hash function
	SHA256 HashFunc = iota
	// SHA512 hash function
	SHA512
)

// PBKDF2Params contains parameters for PBKDF2 key derivation
type PBKDF2Params struct {
	Iterations int      // Number of iterations (minimum 100,000 recommended)
	HashFunc   HashFunc // Hash function to use
	SaltSize   int      // Salt size in bytes (default 32)
	KeySize    int      // Derived key size in bytes (default 32 for AES-256)
}

// Argon2idParams contains parameters for Argon2id key derivation
type Argon2idParams struct {
	Memory      uint32 // Memory in KiB (e.g., 64*1024 for 64MB)
	Iterations  uint32 // Number of iterations (time parameter)
	Parallelism uint8  // Degree of parallelism
	SaltSize    int    // Salt size in bytes (default 32)
	KeySize     int    // Derived key size in bytes (default 32 for AES-256)
}

// withDefaults fills zero fields with the production defaults.
func (p Argon2idParams) withDefaults() Argon2idParams {
	if p.Memory == 0 {
		p.Memory = 64 * 1024 // 64 MB
	}
	if p.Iterations == 0 {
		p.Iterations = 3
	}
	if p.Parallelism == 0 {
		p.Parallelism = 4
	}
	if p.SaltSize == 0 {
		p.SaltSize = 32
	}
	if p.KeySize == 0 {
		p.KeySize = KeySize
	}
	return p
}

// withDefaults fills zero fields with the production defaults.
func (p PBKDF2Params) withDefaults() PBKDF2Params {
	if p.Iterations == 0 {
		p.Iterations = 600000
	}
	if p.SaltSize == 0 {
		p.SaltSize = 32
	}
	if p.KeySize == 0 {
		p.KeySize = KeySize
	}
	return p
}

// Compression selects how the serialized archive is packed before encryption
type Compression uint8

const (
	// CompressionNone stores archive entries as-is
	CompressionNone Compression = iota
	// CompressionZstd compresses the archive payload with zstd
	CompressionZstd
)

// String returns the string representation of the compression mode
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Config contains configuration for the vault
type Config struct {
	// Cipher suite used for containers and key files
	Cipher CipherSuite

	// KeyDerivation selects the KDF protecting the master key
	KeyDerivation KDFAlgorithm

	// Argon2 parameters used when KeyDerivation is KDFArgon2id
	Argon2 Argon2idParams

	// PBKDF2 parameters used when KeyDerivation is KDFPBKDF2
	PBKDF2 PBKDF2Params

	// PasswordHashing parameters for user password verifiers
	PasswordHashing Argon2idParams

	// Compression applied to archives before encryption
	Compression Compression

	// WorkspaceDir is where decrypted workspaces are created.
	// Defaults to the file system's TempDir.
	WorkspaceDir string

	// WorkspacePerm is the mode of newly created workspace directories
	WorkspacePerm os.FileMode

	// Logger receives structured diagnostics; nil means no logging
	Logger *zap.Logger
}

// DefaultConfig returns a configuration with production parameters
func DefaultConfig() *Config {
	return &Config{
		Cipher:          CipherAES256GCM,
		KeyDerivation:   KDFArgon2id,
		Argon2:          Argon2idParams{}.withDefaults(),
		PBKDF2:          PBKDF2Params{HashFunc: SHA256}.withDefaults(),
		PasswordHashing: Argon2idParams{Memory: 19 * 1024, Iterations: 2, Parallelism: 1}.withDefaults(),
		Compression:     CompressionNone,
		WorkspacePerm:   0700,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	switch c.Cipher {
	case CipherAuto, CipherAES256GCM, CipherChaCha20Poly1305, CipherXSalsa20Poly1305:
	default:
		return errors.New("unsupported cipher suite")
	}
	switch c.KeyDerivation {
	case 0, KDFArgon2id:
	case KDFPBKDF2:
		if c.PBKDF2.HashFunc != SHA256 && c.PBKDF2.HashFunc != SHA512 {
			return NewValidationError("pbkdf2.hash", c.PBKDF2.HashFunc, "unsupported hash function")
		}
	default:
		return NewValidationError("key_derivation", c.KeyDerivation, "unsupported key derivation function")
	}
	if c.Compression != CompressionNone && c.Compression != CompressionZstd {
		return NewValidationError("compression", c.Compression, "unsupported compression")
	}
	if c.WorkspacePerm != 0 && c.WorkspacePerm&0700 != 0700 {
		return NewValidationError("workspace_perm", c.WorkspacePerm, "owner must have rwx on workspaces")
	}
	return nil
}

// logger returns the configured logger or a no-op one.
func (c *Config) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// workspacePerm returns the configured workspace mode.
func (c *Config) workspacePerm() os.FileMode {
	if c.WorkspacePerm == 0 {
		return 0700
	}
	return c.WorkspacePerm
}
