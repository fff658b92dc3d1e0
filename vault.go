package cryptvault

import (
	"fmt"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

// Vault bundles the services of one vault sharing a file system and config
type Vault struct {
	fs     absfs.FileSystem
	config *Config
	log    *zap.Logger

	Archiver   *Archiver
	Keys       *KeyStore
	Containers *ContainerService
}

// New creates a vault over base. A nil config selects DefaultConfig.
func New(base absfs.FileSystem, config *Config) (*Vault, error) {
	if base == nil {
		return nil, fmt.Errorf("base filesystem cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	keys, err := NewKeyStore(base, config)
	if err != nil {
		return nil, err
	}
	archiver := NewArchiver(base, config.logger())
	containers, err := NewContainerService(base, archiver, config)
	if err != nil {
		return nil, err
	}

	return &Vault{
		fs:         base,
		config:     config,
		log:        config.logger(),
		Archiver:   archiver,
		Keys:       keys,
		Containers: containers,
	}, nil
}

// FileSystem returns the file system the vault works on
func (v *Vault) FileSystem() absfs.FileSystem {
	return v.fs
}

// InitRegistry creates a fresh key file at keyFile. It refuses to replace
// an existing key file, since that would orphan every container it keys.
func (v *Vault) InitRegistry(keyFile string, password []byte) (*UserRegistry, error) {
	ok, err := v.Keys.Exists(keyFile)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, NewIOError("init", keyFile, fmt.Errorf("key file already exists"))
	}
	return CreateRegistry(v.Keys, keyFile, password)
}

// OpenRegistry loads the registry from keyFile
func (v *Vault) OpenRegistry(keyFile string, password []byte) (*UserRegistry, error) {
	return OpenRegistry(v.Keys, keyFile, password)
}

// Login authenticates a user against r and starts a closed session
func (v *Vault) Login(r *UserRegistry, username string, password []byte) (*Session, error) {
	u, err := r.Authenticate(username, password)
	if err != nil {
		return nil, err
	}
	return NewSession(u)
}
