package cryptvault

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// PasswordHash is a salted Argon2id password verifier
type PasswordHash struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashPassword computes a fresh verifier for password
func HashPassword(password []byte, params Argon2idParams) (PasswordHash, error) {
	if err := ValidatePassword(password); err != nil {
		return PasswordHash{}, err
	}
	params = params.withDefaults()

	salt := make([]byte, params.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return PasswordHash{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	return PasswordHash{
		Memory:      params.Memory,
		Iterations:  params.Iterations,
		Parallelism: params.Parallelism,
		Salt:        salt,
		Hash:        argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Parallelism, uint32(params.KeySize)),
	}, nil
}

// Verify reports whether password matches the verifier, in constant time
func (h PasswordHash) Verify(password []byte) bool {
	if len(h.Hash) == 0 || h.Iterations == 0 || h.Parallelism == 0 {
		return false
	}
	got := argon2.IDKey(password, h.Salt, h.Iterations, h.Memory, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(got, h.Hash) == 1
}
