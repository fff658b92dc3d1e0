package cryptvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the size in bytes of master keys, user keys and key-encryption keys
const KeySize = 32

// envelopeVersion is the current sealed message format version
const envelopeVersion = uint8(1)

// envelopeHeaderSize is version (1 byte) + cipher suite (1 byte)
const envelopeHeaderSize = 2

// CipherEngine provides AEAD encryption/decryption
type CipherEngine interface {
	// Encrypt encrypts plaintext with the given nonce
	Encrypt(nonce, plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext with the given nonce
	Decrypt(nonce, ciphertext []byte) ([]byte, error)

	// NonceSize returns the size of nonces in bytes
	NonceSize() int

	// Overhead returns the authentication tag size
	Overhead() int
}

// AESGCMEngine implements CipherEngine using AES-256-GCM
type AESGCMEngine struct {
	aead cipher.AEAD
}

// NewAESGCMEngine creates a new AES-256-GCM cipher engine
func NewAESGCMEngine(key []byte) (*AESGCMEngine, error) {
	if err := ValidateKey(key, KeySize); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMEngine{aead: aead}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM
func (e *AESGCMEngine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext using AES-256-GCM
func (e *AESGCMEngine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// NonceSize returns the nonce size for AES-GCM (12 bytes)
func (e *AESGCMEngine) NonceSize() int {
	return e.aead.NonceSize()
}

// Overhead returns the authentication tag size (16 bytes)
func (e *AESGCMEngine) Overhead() int {
	return e.aead.Overhead()
}

// ChaCha20Poly1305Engine implements CipherEngine using ChaCha20-Poly1305
type ChaCha20Poly1305Engine struct {
	aead cipher.AEAD
}

// NewChaCha20Poly1305Engine creates a new ChaCha20-Poly1305 cipher engine
func NewChaCha20Poly1305Engine(key []byte) (*ChaCha20Poly1305Engine, error) {
	if err := ValidateKey(key, chacha20poly1305.KeySize); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &ChaCha20Poly1305Engine{aead: aead}, nil
}

// Encrypt encrypts plaintext using ChaCha20-Poly1305
func (e *ChaCha20Poly1305Engine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext using ChaCha20-Poly1305
func (e *ChaCha20Poly1305Engine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// NonceSize returns the nonce size for ChaCha20-Poly1305 (12 bytes)
func (e *ChaCha20Poly1305Engine) NonceSize() int {
	return e.aead.NonceSize()
}

// Overhead returns the authentication tag size (16 bytes)
func (e *ChaCha20Poly1305Engine) Overhead() int {
	return e.aead.Overhead()
}

// SecretboxEngine implements CipherEngine using NaCl secretbox
type SecretboxEngine struct {
	key [KeySize]byte
}

// NewSecretboxEngine creates a new XSalsa20-Poly1305 cipher engine
func NewSecretboxEngine(key []byte) (*SecretboxEngine, error) {
	if err := ValidateKey(key, KeySize); err != nil {
		return nil, err
	}
	e := &SecretboxEngine{}
	copy(e.key[:], key)
	return e, nil
}

// Encrypt encrypts plaintext using secretbox
func (e *SecretboxEngine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	var n [24]byte
	copy(n[:], nonce)
	return secretbox.Seal(nil, plaintext, &n, &e.key), nil
}

// Decrypt decrypts ciphertext using secretbox
func (e *SecretboxEngine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	var n [24]byte
	copy(n[:], nonce)
	plaintext, ok := secretbox.Open(nil, ciphertext, &n, &e.key)
	if !ok {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// NonceSize returns the nonce size for secretbox (24 bytes)
func (e *SecretboxEngine) NonceSize() int {
	return 24
}

// Overhead returns the authentication tag size (16 bytes)
func (e *SecretboxEngine) Overhead() int {
	return secretbox.Overhead
}

// NewCipherEngine creates a new cipher engine based on the cipher suite
func NewCipherEngine(suite CipherSuite, key []byte) (CipherEngine, error) {
	switch suite.resolve() {
	case CipherAES256GCM:
		return NewAESGCMEngine(key)
	case CipherChaCha20Poly1305:
		return NewChaCha20Poly1305Engine(key)
	case CipherXSalsa20Poly1305:
		return NewSecretboxEngine(key)
	default:
		return nil, ErrUnsupportedCipher
	}
}

// GenerateNonce generates a random nonce for the given cipher
func GenerateNonce(suite CipherSuite) ([]byte, error) {
	var nonceSize int

	switch suite.resolve() {
	case CipherAES256GCM:
		nonceSize = 12 // GCM standard nonce size
	case CipherChaCha20Poly1305:
		nonceSize = chacha20poly1305.NonceSize
	case CipherXSalsa20Poly1305:
		nonceSize = 24
	default:
		return nil, ErrUnsupportedCipher
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// GenerateKey returns a fresh random 256-bit symmetric key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, NewCryptoError("keygen", "", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key with AES-256-GCM.
// The result is a self-describing envelope:
//
//	version (1) | cipher suite (1) | nonce | ciphertext || tag
func Encrypt(plaintext, key []byte) ([]byte, error) {
	return EncryptWith(CipherAES256GCM, plaintext, key)
}

// EncryptWith seals plaintext under key with the given cipher suite
func EncryptWith(suite CipherSuite, plaintext, key []byte) ([]byte, error) {
	suite = suite.resolve()

	engine, err := NewCipherEngine(suite, key)
	if err != nil {
		return nil, NewCryptoError("encrypt", "", err)
	}

	nonce, err := GenerateNonce(suite)
	if err != nil {
		return nil, NewCryptoError("encrypt", "", err)
	}

	sealed, err := engine.Encrypt(nonce, plaintext)
	if err != nil {
		return nil, NewCryptoError("encrypt", "", err)
	}

	out := make([]byte, 0, envelopeHeaderSize+len(nonce)+len(sealed))
	out = append(out, envelopeVersion, uint8(suite))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt or EncryptWith.
// Any failure, including truncation and tampering, is reported as a CryptoError.
func Decrypt(envelope, key []byte) ([]byte, error) {
	if len(envelope) < envelopeHeaderSize {
		return nil, NewCryptoError("decrypt", "", ErrInvalidCiphertext)
	}
	if envelope[0] != envelopeVersion {
		return nil, NewCryptoError("decrypt", "", ErrUnsupportedVersion)
	}

	suite := CipherSuite(envelope[1])
	if suite == CipherAuto {
		return nil, NewCryptoError("decrypt", "", ErrUnsupportedCipher)
	}

	engine, err := NewCipherEngine(suite, key)
	if err != nil {
		return nil, NewCryptoError("decrypt", "", err)
	}

	body := envelope[envelopeHeaderSize:]
	if len(body) < engine.NonceSize()+engine.Overhead() {
		return nil, NewCryptoError("decrypt", "", ErrInvalidCiphertext)
	}

	nonce, ciphertext := body[:engine.NonceSize()], body[engine.NonceSize():]
	plaintext, err := engine.Decrypt(nonce, ciphertext)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			return nil, NewCryptoError("decrypt", "", ErrAuthFailed)
		}
		return nil, NewCryptoError("decrypt", "", err)
	}
	return plaintext, nil
}
