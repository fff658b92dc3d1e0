package cryptvault

import (
	"bytes"
	"fmt"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

// KeyStore persists the master key and the encrypted user registry in a
// single password-protected key file.
//
// The master key is sealed under a key-encryption key derived from the
// password; the registry blob is sealed under the master key. A wrong
// password fails integrity verification of the wrapped master key.
type KeyStore struct {
	fs     absfs.FileSystem
	config *Config
	log    *zap.Logger
}

// NewKeyStore creates a key store reading and writing key files through fs
func NewKeyStore(fs absfs.FileSystem, config *Config) (*KeyStore, error) {
	if fs == nil {
		return nil, fmt.Errorf("file system cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &KeyStore{
		fs:     fs,
		config: config,
		log:    config.logger().Named("keystore"),
	}, nil
}

// GenerateMasterKey produces a fresh 256-bit master key
func GenerateMasterKey() ([]byte, error) {
	return GenerateKey()
}

// Save seals masterKey and registryBlob under password and atomically
// writes the key file to dest.
func (ks *KeyStore) Save(masterKey, password, registryBlob []byte, dest string) error {
	if err := ValidateFilePath(dest); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if err := ValidateKey(masterKey, KeySize); err != nil {
		return NewCryptoError("encrypt", dest, err)
	}

	provider := newPasswordKeyProviderFromConfig(password, ks.config)
	salt, err := provider.GenerateSalt()
	if err != nil {
		return NewCryptoError("encrypt", dest, err)
	}
	kek, err := provider.DeriveKey(salt)
	if err != nil {
		return NewCryptoError("encrypt", dest, err)
	}

	wrapped, err := EncryptWith(ks.config.Cipher, masterKey, kek)
	if err != nil {
		return withPath(err, dest)
	}
	sealedRegistry, err := EncryptWith(ks.config.Cipher, registryBlob, masterKey)
	if err != nil {
		return withPath(err, dest)
	}

	kf := &KeyFile{
		Header: KeyFileHeader{
			Magic:   KeyFileMagic,
			Version: KeyFileVersion,
			KDF:     provider.kdfParams(),
			Salt:    salt,
		},
		WrappedKey:  wrapped,
		RegistryBox: sealedRegistry,
	}

	var buf bytes.Buffer
	if _, err := kf.WriteTo(&buf); err != nil {
		return NewIOError("encode", dest, err)
	}
	if err := writeFileAtomic(ks.fs, dest, buf.Bytes(), 0600); err != nil {
		return err
	}

	ks.log.Info("key file saved",
		zap.String("path", dest),
		zap.Stringer("kdf", kf.Header.KDF.Algorithm),
		zap.Int("registry_bytes", len(registryBlob)))
	return nil
}

// Load derives the key-encryption key from password and returns the master
// key and the decrypted registry blob stored in file.
func (ks *KeyStore) Load(password []byte, file string) (masterKey, registryBlob []byte, err error) {
	if err := ValidateFilePath(file); err != nil {
		return nil, nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, nil, err
	}

	data, err := readFile(ks.fs, file)
	if err != nil {
		return nil, nil, NewIOError("read", file, err)
	}

	kf, err := ReadKeyFile(data)
	if err != nil {
		return nil, nil, withPath(err, file)
	}

	kek, err := kf.Header.KDF.provider(password).DeriveKey(kf.Header.Salt)
	if err != nil {
		return nil, nil, NewCryptoError("decrypt", file, err)
	}

	masterKey, err = Decrypt(kf.WrappedKey, kek)
	if err != nil {
		ks.log.Debug("master key unwrap failed", zap.String("path", file))
		return nil, nil, withPath(err, file)
	}
	if len(masterKey) != KeySize {
		return nil, nil, NewCryptoError("decrypt", file, ErrInvalidKey)
	}

	registryBlob, err = Decrypt(kf.RegistryBox, masterKey)
	if err != nil {
		return nil, nil, withPath(err, file)
	}

	ks.log.Info("key file loaded", zap.String("path", file), zap.Stringer("kdf", kf.Header.KDF.Algorithm))
	return masterKey, registryBlob, nil
}

// ChangePassword re-wraps the master key of file under newPassword.
// The registry is re-sealed unchanged and the master key stays the same,
// so existing user keys and containers remain valid.
func (ks *KeyStore) ChangePassword(file string, oldPassword, newPassword []byte) error {
	masterKey, registryBlob, err := ks.Load(oldPassword, file)
	if err != nil {
		return err
	}
	if err := ks.Save(masterKey, newPassword, registryBlob, file); err != nil {
		return fmt.Errorf("failed to rewrite key file: %w", err)
	}
	ks.log.Info("key file password changed", zap.String("path", file))
	return nil
}

// Exists reports whether a key file is present at file
func (ks *KeyStore) Exists(file string) (bool, error) {
	ok, err := exists(ks.fs, file)
	if err != nil {
		return false, NewIOError("stat", file, err)
	}
	return ok, nil
}
