package cryptvault

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyStore(t *testing.T) (*KeyStore, string) {
	t.Helper()
	fs, root := setupTestFS(t)
	ks, err := NewKeyStore(fs, testConfig())
	require.NoError(t, err)
	return ks, root
}

func TestKeyStore_SaveLoad(t *testing.T) {
	ks, root := newTestKeyStore(t)
	master, err := GenerateMasterKey()
	require.NoError(t, err)
	blob := []byte("registry bytes")

	require.NoError(t, ks.Save(master, []byte("pw"), blob, "/vault.key"))

	info, err := os.Stat(filepath.Join(root, "vault.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	gotKey, gotBlob, err := ks.Load([]byte("pw"), "/vault.key")
	require.NoError(t, err)
	assert.Equal(t, master, gotKey)
	assert.Equal(t, blob, gotBlob)
}

func TestKeyStore_EmptyRegistryBlob(t *testing.T) {
	ks, _ := newTestKeyStore(t)
	master, _ := GenerateMasterKey()

	require.NoError(t, ks.Save(master, []byte("pw"), nil, "/vault.key"))
	_, blob, err := ks.Load([]byte("pw"), "/vault.key")
	require.NoError(t, err)
	assert.Empty(t, blob)
}

func TestKeyStore_WrongPassword(t *testing.T) {
	ks, _ := newTestKeyStore(t)
	master, _ := GenerateMasterKey()
	require.NoError(t, ks.Save(master, []byte("right"), []byte("r"), "/vault.key"))

	_, _, err := ks.Load([]byte("wrong"), "/vault.key")
	require.Error(t, err)
	assert.True(t, IsCryptoError(err), "got %T: %v", err, err)
	assert.True(t, errors.Is(err, ErrAuthFailed))
}

func TestKeyStore_LoadErrors(t *testing.T) {
	ks, root := newTestKeyStore(t)
	master, _ := GenerateMasterKey()
	require.NoError(t, ks.Save(master, []byte("pw"), []byte("reg"), "/vault.key"))
	valid, err := os.ReadFile(filepath.Join(root, "vault.key"))
	require.NoError(t, err)

	t.Run("missing file", func(t *testing.T) {
		_, _, err := ks.Load([]byte("pw"), "/nope.key")
		assert.True(t, IsIOError(err), "got %v", err)
	})

	t.Run("empty password", func(t *testing.T) {
		_, _, err := ks.Load(nil, "/vault.key")
		assert.True(t, IsValidationError(err), "got %v", err)
	})

	corrupt := func(name string, data []byte, want error) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(filepath.Join(root, "bad.key"), data, 0600))
			_, _, err := ks.Load([]byte("pw"), "/bad.key")
			require.Error(t, err)
			assert.True(t, IsFormatError(err), "got %T: %v", err, err)
			if want != nil {
				assert.ErrorIs(t, err, want)
			}
		})
	}

	corrupt("empty", nil, io.ErrUnexpectedEOF)
	corrupt("truncated", valid[:len(valid)/2], io.ErrUnexpectedEOF)
	corrupt("trailing byte", append(append([]byte(nil), valid...), 0), ErrInvalidHeader)

	badMagic := append([]byte(nil), valid...)
	badMagic[0] ^= 0xFF
	corrupt("bad magic", badMagic, ErrInvalidHeader)

	badVersion := append([]byte(nil), valid...)
	badVersion[4] = 9
	corrupt("bad version", badVersion, ErrUnsupportedVersion)

	badKDF := append([]byte(nil), valid...)
	badKDF[5] = 77
	corrupt("bad kdf", badKDF, ErrInvalidHeader)

	hugeMemory := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(hugeMemory[11:], maxArgon2Memory+1)
	corrupt("huge argon2 memory", hugeMemory, ErrInvalidHeader)

	t.Run("tampered registry", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[len(data)-1] ^= 0x01
		require.NoError(t, os.WriteFile(filepath.Join(root, "bad.key"), data, 0600))
		_, _, err := ks.Load([]byte("pw"), "/bad.key")
		assert.True(t, IsCryptoError(err), "got %T: %v", err, err)
	})
}

func TestKeyStore_PBKDF2(t *testing.T) {
	fs, _ := setupTestFS(t)
	config := testConfig()
	config.KeyDerivation = KDFPBKDF2
	config.PBKDF2 = PBKDF2Params{Iterations: 1000, HashFunc: SHA512}
	ks, err := NewKeyStore(fs, config)
	require.NoError(t, err)

	master, _ := GenerateMasterKey()
	require.NoError(t, ks.Save(master, []byte("pw"), []byte("r"), "/vault.key"))

	// A store configured for Argon2id still reads it; parameters come from the file.
	other, err := NewKeyStore(fs, testConfig())
	require.NoError(t, err)
	got, _, err := other.Load([]byte("pw"), "/vault.key")
	require.NoError(t, err)
	assert.Equal(t, master, got)
}

func TestKeyStore_ChangePassword(t *testing.T) {
	ks, _ := newTestKeyStore(t)
	master, _ := GenerateMasterKey()
	blob := []byte("users")
	require.NoError(t, ks.Save(master, []byte("old"), blob, "/vault.key"))

	require.Error(t, ks.ChangePassword("/vault.key", []byte("bad"), []byte("new")))
	require.NoError(t, ks.ChangePassword("/vault.key", []byte("old"), []byte("new")))

	_, _, err := ks.Load([]byte("old"), "/vault.key")
	assert.Error(t, err)

	gotKey, gotBlob, err := ks.Load([]byte("new"), "/vault.key")
	require.NoError(t, err)
	assert.Equal(t, master, gotKey, "master key must survive a password change")
	assert.Equal(t, blob, gotBlob)
}

func TestKeyStore_Exists(t *testing.T) {
	ks, _ := newTestKeyStore(t)
	ok, err := ks.Exists("/vault.key")
	require.NoError(t, err)
	assert.False(t, ok)

	master, _ := GenerateMasterKey()
	require.NoError(t, ks.Save(master, []byte("pw"), nil, "/vault.key"))
	ok, err = ks.Exists("/vault.key")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeyStore_SaveValidation(t *testing.T) {
	ks, _ := newTestKeyStore(t)
	master, _ := GenerateMasterKey()

	assert.True(t, IsValidationError(ks.Save(master, []byte("pw"), nil, "")))
	assert.True(t, IsValidationError(ks.Save(master, nil, nil, "/k")))
	assert.True(t, IsCryptoError(ks.Save(master[:8], []byte("pw"), nil, "/k")))
}

func TestKeyStore_SaveFailureKeepsOldFile(t *testing.T) {
	ks, root := newTestKeyStore(t)
	master, _ := GenerateMasterKey()
	require.NoError(t, ks.Save(master, []byte("pw"), []byte("v1"), "/vault.key"))
	before, err := os.ReadFile(filepath.Join(root, "vault.key"))
	require.NoError(t, err)

	// Destination inside a missing directory cannot be written.
	require.Error(t, ks.Save(master, []byte("pw"), []byte("v2"), "/missing/vault.key"))

	after, err := os.ReadFile(filepath.Join(root, "vault.key"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after))
}

func TestKeyFile_WriteRead(t *testing.T) {
	kf := &KeyFile{
		Header: KeyFileHeader{
			Magic:   KeyFileMagic,
			Version: KeyFileVersion,
			KDF:     KDFParams{Algorithm: KDFArgon2id, Iterations: 2, Memory: 2048, Parallelism: 2},
			Salt:    bytes.Repeat([]byte{7}, 16),
		},
		WrappedKey:  []byte("wrapped"),
		RegistryBox: []byte("registry"),
	}

	var buf bytes.Buffer
	n, err := kf.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := ReadKeyFile(buf.Bytes())
	require.NoError(t, err)
	if diff := deep.Equal(kf, got); diff != nil {
		t.Error(diff)
	}
}
