package cryptvault

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// UserRecord is a registered user: a password verifier and the user's
// container key. Records are immutable once registered.
type UserRecord struct {
	Username string
	Password PasswordHash
	Key      []byte
}

// UserRegistry maps usernames to user records. It is the single source of
// truth for authentication and is persisted, sealed under the master key,
// inside the key file.
//
// A UserRegistry is not safe for concurrent use.
type UserRegistry struct {
	store     *KeyStore
	keyFile   string
	password  []byte
	masterKey []byte
	users     map[string]*UserRecord
	hashing   Argon2idParams
	decoy     PasswordHash
	log       *zap.Logger
}

// CreateRegistry generates a new master key and writes an empty registry to keyFile
func CreateRegistry(store *KeyStore, keyFile string, password []byte) (*UserRegistry, error) {
	masterKey, err := GenerateMasterKey()
	if err != nil {
		return nil, err
	}

	r := newRegistry(store, keyFile, password, masterKey, map[string]*UserRecord{})
	if err := r.save(); err != nil {
		return nil, err
	}
	r.log.Info("registry created", zap.String("key_file", keyFile))
	return r, nil
}

// OpenRegistry loads the registry stored in keyFile
func OpenRegistry(store *KeyStore, keyFile string, password []byte) (*UserRegistry, error) {
	masterKey, blob, err := store.Load(password, keyFile)
	if err != nil {
		return nil, err
	}

	users, err := decodeRegistry(blob)
	if err != nil {
		return nil, withPath(err, keyFile)
	}

	r := newRegistry(store, keyFile, password, masterKey, users)
	r.log.Info("registry loaded", zap.String("key_file", keyFile), zap.Int("users", len(users)))
	return r, nil
}

func newRegistry(store *KeyStore, keyFile string, password, masterKey []byte, users map[string]*UserRecord) *UserRegistry {
	r := &UserRegistry{
		store:     store,
		keyFile:   keyFile,
		password:  append([]byte(nil), password...),
		masterKey: masterKey,
		users:     users,
		hashing:   store.config.PasswordHashing.withDefaults(),
		log:       store.log.Named("registry"),
	}
	r.decoy = PasswordHash{
		Memory:      r.hashing.Memory,
		Iterations:  r.hashing.Iterations,
		Parallelism: r.hashing.Parallelism,
		Salt:        make([]byte, r.hashing.SaltSize),
		Hash:        make([]byte, r.hashing.KeySize),
	}
	return r
}

// Authenticate returns the record for username if password matches.
// Unknown users and wrong passwords both yield an AuthError.
func (r *UserRegistry) Authenticate(username string, password []byte) (*UserRecord, error) {
	u, ok := r.users[username]
	if !ok {
		// Spend the same hashing work as a real check.
		r.decoy.Verify(password)
		r.log.Debug("authentication failed", zap.String("user", username), zap.String("reason", "unknown user"))
		return nil, &AuthError{Username: username, Err: ErrUserNotFound}
	}
	if !u.Password.Verify(password) {
		r.log.Debug("authentication failed", zap.String("user", username), zap.String("reason", "wrong password"))
		return nil, &AuthError{Username: username, Err: ErrWrongPassword}
	}
	r.log.Info("user authenticated", zap.String("user", username))
	return u, nil
}

// Register creates a user with a fresh container key and persists the whole
// registry. If persisting fails the registry is left unchanged.
func (r *UserRegistry) Register(username string, password []byte) (*UserRecord, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if _, ok := r.users[username]; ok {
		return nil, &ExistsError{Username: username}
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	verifier, err := HashPassword(password, r.hashing)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &UserRecord{Username: username, Password: verifier, Key: key}
	r.users[username] = u
	if err := r.save(); err != nil {
		delete(r.users, username)
		return nil, err
	}

	r.log.Info("user registered", zap.String("user", username), zap.Int("users", len(r.users)))
	return u, nil
}

// Lookup returns the record for username without checking a password
func (r *UserRegistry) Lookup(username string) (*UserRecord, bool) {
	u, ok := r.users[username]
	return u, ok
}

// Usernames returns the registered usernames in sorted order
func (r *UserRegistry) Usernames() []string {
	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered users
func (r *UserRegistry) Len() int {
	return len(r.users)
}

// KeyFile returns the path the registry is persisted to
func (r *UserRegistry) KeyFile() string {
	return r.keyFile
}

// save re-encrypts and rewrites the whole registry.
func (r *UserRegistry) save() error {
	blob, err := encodeRegistry(r.users)
	if err != nil {
		return NewFormatError("registry", "encode", err)
	}
	return r.store.Save(r.masterKey, r.password, blob, r.keyFile)
}
