package cryptvault

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KeyProvider derives key-encryption keys from a salt
type KeyProvider interface {
	// DeriveKey derives an encryption key from the given salt
	DeriveKey(salt []byte) ([]byte, error)

	// GenerateSalt generates a new random salt
	GenerateSalt() ([]byte, error)
}

// PasswordKeyProvider implements KeyProvider using password-based key derivation
type PasswordKeyProvider struct {
	password     []byte
	useArgon2id  bool
	pbkdf2Params PBKDF2Params
	argon2Params Argon2idParams
}

// NewPasswordKeyProviderPBKDF2 creates a new password-based key provider using PBKDF2
func NewPasswordKeyProviderPBKDF2(password []byte, params PBKDF2Params) *PasswordKeyProvider {
	return &PasswordKeyProvider{
		password:     password,
		useArgon2id:  false,
		pbkdf2Params: params.withDefaults(),
	}
}

// NewPasswordKeyProvider creates a new password-based key provider using Argon2id (recommended)
func NewPasswordKeyProvider(password []byte, params Argon2idParams) *PasswordKeyProvider {
	return &PasswordKeyProvider{
		password:     password,
		useArgon2id:  true,
		argon2Params: params.withDefaults(),
	}
}

// newPasswordKeyProviderFromConfig picks the KDF configured for key files.
func newPasswordKeyProviderFromConfig(password []byte, config *Config) *PasswordKeyProvider {
	if config.KeyDerivation == KDFPBKDF2 {
		return NewPasswordKeyProviderPBKDF2(password, config.PBKDF2)
	}
	return NewPasswordKeyProvider(password, config.Argon2)
}

// DeriveKey derives an encryption key from the password and salt
func (p *PasswordKeyProvider) DeriveKey(salt []byte) ([]byte, error) {
	if len(p.password) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("salt cannot be empty")
	}

	if p.useArgon2id {
		key := argon2.IDKey(
			p.password,
			salt,
			p.argon2Params.Iterations,
			p.argon2Params.Memory,
			p.argon2Params.Parallelism,
			uint32(p.argon2Params.KeySize),
		)
		return key, nil
	}

	var hashFunc func() hash.Hash
	switch p.pbkdf2Params.HashFunc {
	case SHA256:
		hashFunc = sha256.New
	case SHA512:
		hashFunc = sha512.New
	default:
		return nil, fmt.Errorf("unsupported hash function: %v", p.pbkdf2Params.HashFunc)
	}

	key := pbkdf2.Key(
		p.password,
		salt,
		p.pbkdf2Params.Iterations,
		p.pbkdf2Params.KeySize,
		hashFunc,
	)
	return key, nil
}

// GenerateSalt generates a new random salt
func (p *PasswordKeyProvider) GenerateSalt() ([]byte, error) {
	var saltSize int
	if p.useArgon2id {
		saltSize = p.argon2Params.SaltSize
	} else {
		saltSize = p.pbkdf2Params.SaltSize
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// kdfParams returns the parameters recorded in a key file header.
func (p *PasswordKeyProvider) kdfParams() KDFParams {
	if p.useArgon2id {
		return KDFParams{
			Algorithm:   KDFArgon2id,
			Iterations:  p.argon2Params.Iterations,
			Memory:      p.argon2Params.Memory,
			Parallelism: p.argon2Params.Parallelism,
		}
	}
	return KDFParams{
		Algorithm:  KDFPBKDF2,
		Iterations: uint32(p.pbkdf2Params.Iterations),
		HashFunc:   p.pbkdf2Params.HashFunc,
	}
}

// KDFParams are the derivation parameters stored alongside the salt in a key file
type KDFParams struct {
	Algorithm   KDFAlgorithm
	Iterations  uint32
	Memory      uint32 // KiB, Argon2id only
	Parallelism uint8  // Argon2id only
	HashFunc    HashFunc
}

// Upper bounds applied to parameters read from disk so a crafted key file
// cannot make loading allocate or spin without limit.
const (
	maxArgon2Memory     = 4 * 1024 * 1024 // 4 GiB in KiB
	maxArgon2Iterations = 64
	maxPBKDF2Iterations = 50_000_000
)

// validate checks parameters read from a key file.
func (k KDFParams) validate() error {
	switch k.Algorithm {
	case KDFArgon2id:
		if k.Iterations == 0 || k.Iterations > maxArgon2Iterations {
			return fmt.Errorf("argon2id iterations out of range: %d", k.Iterations)
		}
		if k.Memory == 0 || k.Memory > maxArgon2Memory {
			return fmt.Errorf("argon2id memory out of range: %d KiB", k.Memory)
		}
		if k.Parallelism == 0 {
			return errors.New("argon2id parallelism cannot be zero")
		}
	case KDFPBKDF2:
		if k.Iterations == 0 || k.Iterations > maxPBKDF2Iterations {
			return fmt.Errorf("pbkdf2 iterations out of range: %d", k.Iterations)
		}
		if k.HashFunc != SHA256 && k.HashFunc != SHA512 {
			return fmt.Errorf("unsupported hash function: %v", k.HashFunc)
		}
	default:
		return fmt.Errorf("unknown key derivation function %d", k.Algorithm)
	}
	return nil
}

// provider rebuilds the key provider described by the parameters.
func (k KDFParams) provider(password []byte) *PasswordKeyProvider {
	if k.Algorithm == KDFPBKDF2 {
		return NewPasswordKeyProviderPBKDF2(password, PBKDF2Params{
			Iterations: int(k.Iterations),
			HashFunc:   k.HashFunc,
		})
	}
	return NewPasswordKeyProvider(password, Argon2idParams{
		Memory:      k.Memory,
		Iterations:  k.Iterations,
		Parallelism: k.Parallelism,
	})
}
