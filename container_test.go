package cryptvault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/absfs/absfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type containerFixture struct {
	fs      absfs.FileSystem
	root    string
	svc     *ContainerService
	session *Session
	key     []byte
}

func newContainerFixture(t *testing.T, mutate ...func(*Config)) *containerFixture {
	t.Helper()
	fs, root := setupTestFS(t)
	config := testConfig()
	config.WorkspaceDir = "/work"
	for _, m := range mutate {
		m(config)
	}
	svc, err := NewContainerService(fs, nil, config)
	require.NoError(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewSessionWithKey("alice", key)
	require.NoError(t, err)

	return &containerFixture{fs: fs, root: root, svc: svc, session: s, key: key}
}

// workspaces lists the workspace directories currently on disk
func (f *containerFixture) workspaces(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.root, "work"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// recorder collects progress updates and checks the callback contract
type recorder struct {
	calls []int
}

func (r *recorder) fn(percent int) { r.calls = append(r.calls, percent) }

func (r *recorder) check(t *testing.T) {
	t.Helper()
	require.NotEmpty(t, r.calls)
	assert.Equal(t, 100, r.calls[len(r.calls)-1], "final progress: %v", r.calls)
	for i, p := range r.calls {
		assert.True(t, p >= 0 && p <= 100, "out of range: %v", r.calls)
		if i > 0 {
			assert.GreaterOrEqual(t, p, r.calls[i-1], "decreasing: %v", r.calls)
		}
	}
}

var sampleTree = map[string]string{
	"todo.txt":         "buy milk",
	"empty.txt":        "",
	"photos/":          "",
	"photos/cat.raw":   string(bytes.Repeat([]byte{1, 2, 3, 4}, 20000)),
	"photos/2024/":     "",
	"photos/2024/a.md": "# a",
	"nothing/":         "",
}

func TestCreateContainer(t *testing.T) {
	f := newContainerFixture(t)
	writeTree(t, f.fs, "/src", sampleTree)

	var progress recorder
	ws, err := f.svc.CreateContainer(f.session, "/src", "/alice.cv", progress.fn)
	require.NoError(t, err)
	progress.check(t)

	assert.Equal(t, SessionOpen, f.session.State())
	assert.Equal(t, ws, f.session.Workspace())
	assert.Equal(t, "/alice.cv", f.session.ContainerPath())
	assert.Equal(t, sampleTree, readTree(t, f.fs, ws))

	info, err := os.Stat(filepath.Join(f.root, "alice.cv"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	wsInfo, err := os.Stat(filepath.Join(f.root, ws))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), wsInfo.Mode().Perm())

	// The file is a bare cipher envelope.
	raw, err := os.ReadFile(filepath.Join(f.root, "alice.cv"))
	require.NoError(t, err)
	assert.Equal(t, envelopeVersion, raw[0])
	assert.False(t, bytes.Contains(raw, []byte("todo.txt")))
	assert.False(t, bytes.Contains(raw, []byte("buy milk")))

	_, err = f.svc.CreateContainer(f.session, "/src", "/other.cv", nil)
	assert.ErrorIs(t, err, ErrSessionOpen)
	_, err = f.svc.OpenContainer(f.session, "/alice.cv", nil)
	assert.ErrorIs(t, err, ErrSessionOpen)
}

func TestCreateContainer_MissingSource(t *testing.T) {
	f := newContainerFixture(t)

	_, err := f.svc.CreateContainer(f.session, "/nope", "/alice.cv", nil)
	require.Error(t, err)
	assert.True(t, IsIOError(err))

	assert.Equal(t, SessionClosed, f.session.State())
	assert.Empty(t, f.workspaces(t))
	_, err = os.Stat(filepath.Join(f.root, "alice.cv"))
	assert.True(t, os.IsNotExist(err))
}

func TestContainerIdempotence(t *testing.T) {
	f := newContainerFixture(t)
	writeTree(t, f.fs, "/src", sampleTree)

	_, err := f.svc.CreateContainer(f.session, "/src", "/alice.cv", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.CloseAndCleanup(f.session, nil))
	assert.Empty(t, f.workspaces(t))

	var openProgress recorder
	ws, err := f.svc.OpenContainer(f.session, "/alice.cv", openProgress.fn)
	require.NoError(t, err)
	openProgress.check(t)
	assert.Equal(t, sampleTree, readTree(t, f.fs, ws))

	var saveProgress recorder
	require.NoError(t, f.svc.SaveContainer(f.session, saveProgress.fn))
	saveProgress.check(t)
	require.NoError(t, f.svc.CloseAndCleanup(f.session, nil))

	ws, err = f.svc.OpenContainer(f.session, "/alice.cv", nil)
	require.NoError(t, err)
	assert.Equal(t, sampleTree, readTree(t, f.fs, ws))
}

func TestOpenContainer_WrongKey(t *testing.T) {
	f := newContainerFixture(t)
	writeTree(t, f.fs, "/src", sampleTree)
	_, err := f.svc.CreateContainer(f.session, "/src", "/alice.cv", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.CloseAndCleanup(f.session, nil))
	before, err := os.ReadFile(filepath.Join(f.root, "alice.cv"))
	require.NoError(t, err)

	otherKey, _ := GenerateKey()
	mallory, err := NewSessionWithKey("mallory", otherKey)
	require.NoError(t, err)

	var progress recorder
	_, err = f.svc.OpenContainer(mallory, "/alice.cv", progress.fn)
	require.Error(t, err)
	assert.True(t, IsCryptoError(err))
	assert.ErrorIs(t, err, ErrAuthFailed)

	assert.Equal(t, SessionClosed, mallory.State())
	assert.Empty(t, f.workspaces(t), "no workspace may be created")
	assert.NotContains(t, progress.calls, 100)

	after, err := os.ReadFile(filepath.Join(f.root, "alice.cv"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpenContainer_Corrupted(t *testing.T) {
	f := newContainerFixture(t)
	writeTree(t, f.fs, "/src", map[string]string{"a": "b"})
	_, err := f.svc.CreateContainer(f.session, "/src", "/alice.cv", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.CloseAndCleanup(f.session, nil))

	path := filepath.Join(f.root, "alice.cv")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, i := range []int{0, 1, 2, len(data) / 2, len(data) - 1} {
		mutated := append([]byte(nil), data...)
		mutated[i] ^= 0x20
		require.NoError(t, os.WriteFile(path, mutated, 0600))
		_, err := f.svc.OpenContainer(f.session, "/alice.cv", nil)
		assert.True(t, IsCryptoError(err), "byte %d: %v", i, err)
	}

	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0600))
	_, err = f.svc.OpenContainer(f.session, "/alice.cv", nil)
	assert.True(t, IsCryptoError(err))

	_, err = f.svc.OpenContainer(f.session, "/missing.cv", nil)
	assert.True(t, IsIOError(err))

	assert.Empty(t, f.workspaces(t))
	assert.Equal(t, SessionClosed, f.session.State())
}

func TestOpenContainer_ValidCipherBadArchive(t *testing.T) {
	f := newContainerFixture(t)
	sealed, err := Encrypt([]byte("not an archive"), f.key)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "junk.cv"), sealed, 0600))

	_, err = f.svc.OpenContainer(f.session, "/junk.cv", nil)
	require.Error(t, err)
	assert.True(t, IsFormatError(err))

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "/junk.cv", fe.Path)
	assert.Empty(t, f.workspaces(t))
}

func TestOpenContainer_UnsafeEntries(t *testing.T) {
	f := newContainerFixture(t)
	sealed, err := Encrypt(encodeRaw(ArchiveEntry{Path: "../../escape", Data: []byte("x")}), f.key)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "evil.cv"), sealed, 0600))

	_, err = f.svc.OpenContainer(f.session, "/evil.cv", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.Empty(t, f.workspaces(t))
	_, statErr := os.Stat(filepath.Join(f.root, "escape"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveContainer_FailureKeepsPreviousContainer(t *testing.T) {
	f := newContainerFixture(t)
	writeTree(t, f.fs, "/src", sampleTree)
	ws, err := f.svc.CreateContainer(f.session, "/src", "/alice.cv", nil)
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(f.root, "alice.cv"))
	require.NoError(t, err)

	// A vanished workspace cannot be archived.
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, ws)))

	err = f.svc.SaveContainer(f.session, nil)
	require.Error(t, err)
	assert.True(t, IsIOError(err))

	err = f.svc.CloseAndCleanup(f.session, nil)
	require.Error(t, err)
	assert.Equal(t, SessionOpen, f.session.State(), "a failed close keeps the session open")

	after, err := os.ReadFile(filepath.Join(f.root, "alice.cv"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	matches, err := filepath.Glob(filepath.Join(f.root, ".alice.cv.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary files must be cleaned up")
}

func TestSaveContainerAs(t *testing.T) {
	f := newContainerFixture(t)
	writeTree(t, f.fs, "/src", map[string]string{"a.txt": "1"})
	ws, err := f.svc.CreateContainer(f.session, "/src", "/alice.cv", nil)
	require.NoError(t, err)

	writeTree(t, f.fs, ws, map[string]string{"a.txt": "2"})
	require.NoError(t, f.svc.SaveContainerAs(f.session, "/copy.cv", nil))
	assert.Equal(t, "/copy.cv", f.session.ContainerPath())
	require.NoError(t, f.svc.CloseAndCleanup(f.session, nil))

	// The original was left at its created state.
	ar, err := f.svc.ReadContainer("/alice.cv", f.key)
	require.NoError(t, err)
	assert.Equal(t, "1", string(ar.Entries[0].Data))

	ar, err = f.svc.ReadContainer("/copy.cv", f.key)
	require.NoError(t, err)
	assert.Equal(t, "2", string(ar.Entries[0].Data))
}

func TestClosedSession(t *testing.T) {
	f := newContainerFixture(t)

	called := false
	require.NoError(t, f.svc.CloseAndCleanup(f.session, func(int) { called = true }))
	assert.False(t, called, "closing a closed session is a no-op")

	assert.ErrorIs(t, f.svc.SaveContainer(f.session, nil), ErrSessionClosed)
	assert.ErrorIs(t, f.svc.SaveContainerAs(f.session, "/x.cv", nil), ErrSessionClosed)
}

func TestEmptyContainer(t *testing.T) {
	f := newContainerFixture(t)
	require.NoError(t, f.fs.MkdirAll("/empty", 0755))

	ws, err := f.svc.CreateContainer(f.session, "/empty", "/empty.cv", nil)
	require.NoError(t, err)
	assert.Empty(t, readTree(t, f.fs, ws))
	require.NoError(t, f.svc.CloseAndCleanup(f.session, nil))

	var progress recorder
	ws, err = f.svc.OpenContainer(f.session, "/empty.cv", progress.fn)
	require.NoError(t, err)
	progress.check(t)
	assert.Empty(t, readTree(t, f.fs, ws))
}

func TestContainerConfigVariants(t *testing.T) {
	variants := map[string]func(*Config){
		"chacha20":  func(c *Config) { c.Cipher = CipherChaCha20Poly1305 },
		"secretbox": func(c *Config) { c.Cipher = CipherXSalsa20Poly1305 },
		"zstd":      func(c *Config) { c.Compression = CompressionZstd },
	}

	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			f := newContainerFixture(t, mutate)
			writeTree(t, f.fs, "/src", sampleTree)
			_, err := f.svc.CreateContainer(f.session, "/src", "/v.cv", nil)
			require.NoError(t, err)
			require.NoError(t, f.svc.CloseAndCleanup(f.session, nil))

			require.NoError(t, f.svc.VerifyContainer("/v.cv", f.key))

			// A default service reads any variant.
			plain := newContainerFixture(t)
			data, err := os.ReadFile(filepath.Join(f.root, "v.cv"))
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(plain.root, "v.cv"), data, 0600))
			ar, err := plain.svc.ReadContainer("/v.cv", f.key)
			require.NoError(t, err)
			assert.Equal(t, len(sampleTree), len(ar.Entries))
		})
	}
}

func TestVerifyContainer(t *testing.T) {
	f := newContainerFixture(t)
	writeTree(t, f.fs, "/src", map[string]string{"a": "b"})
	_, err := f.svc.CreateContainer(f.session, "/src", "/alice.cv", nil)
	require.NoError(t, err)

	assert.NoError(t, f.svc.VerifyContainer("/alice.cv", f.key))

	other, _ := GenerateKey()
	assert.True(t, IsCryptoError(f.svc.VerifyContainer("/alice.cv", other)))
	assert.True(t, IsValidationError(f.svc.VerifyContainer("", f.key)))
}

func TestNewSession(t *testing.T) {
	_, err := NewSession(nil)
	assert.Error(t, err)

	_, err = NewSessionWithKey("bob", make([]byte, 10))
	assert.True(t, IsCryptoError(err))

	key, _ := GenerateKey()
	s, err := NewSession(&UserRecord{Username: "bob", Key: key})
	require.NoError(t, err)
	assert.Equal(t, "bob", s.Username())
	assert.Equal(t, SessionClosed, s.State())
	assert.Equal(t, "closed", s.State().String())
	assert.Equal(t, "", s.Workspace())

	// The session keeps its own copy of the key.
	key[0] ^= 0xFF
	assert.NotEqual(t, key, s.key)
}
