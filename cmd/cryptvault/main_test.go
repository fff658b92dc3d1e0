package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/absfs/cryptvault"
	"github.com/absfs/cryptvault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t       *testing.T
	dir     string
	cfgPath string
	workDir string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{
		t:       t,
		dir:     dir,
		cfgPath: filepath.Join(dir, "settings", "config.toml"),
		workDir: filepath.Join(dir, "work"),
	}
}

// exec runs one command the way a separate process would.
func (c *cli) exec(in io.Reader, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	a := newApp(in, &out, &errOut)
	a.tune = func(cfg *cryptvault.Config) {
		cfg.Argon2 = cryptvault.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1}
		cfg.PasswordHashing = cryptvault.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1}
		cfg.PBKDF2.Iterations = 1000
		cfg.WorkspaceDir = c.workDir
	}
	cmd := newRootCmd(a)
	cmd.SetArgs(append([]string{"--config", c.cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) run(input string, args ...string) (string, error) {
	return c.exec(strings.NewReader(input), args...)
}

func (c *cli) path(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *cli) settings() *config.Store {
	s, err := config.Load(c.cfgPath)
	require.NoError(c.t, err)
	return s
}

func lines(s ...string) string {
	return strings.Join(s, "\n") + "\n"
}

func TestCLI_Workflow(t *testing.T) {
	c := newCLI(t)
	keyFile := c.path("vault.key")
	container := c.path("alice.cv")

	src := c.path("src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "note.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "docs", "plan.md"), []byte("# plan"), 0644))

	out, err := c.run(lines("master", "master"), "init", "--key-file", keyFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Key file created")
	assert.Equal(t, keyFile, c.settings().LastKeyPath())

	_, err = c.run(lines("master", "master"), "init", "--key-file", keyFile)
	assert.True(t, cryptvault.IsIOError(err), "init over an existing key file: %v", err)

	out, err = c.run(lines("master", "alicepw", "alicepw"), "register", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "User alice registered")

	out, err = c.run(lines("master"), "users")
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)

	_, err = c.run(lines("wrong"), "users")
	assert.Error(t, err)

	out, err = c.run(lines("master", "alicepw"), "create", src, container, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Container created")
	assert.Equal(t, container, c.settings().LastContainerPath("alice"))
	assertNoWorkspaces(t, c.workDir)

	out, err = c.run(lines("master", "alicepw"), "verify", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "3 entries, 2 files, 11 bytes")

	_, err = c.run(lines("master", "nope"), "verify", "--user", "alice")
	assert.True(t, cryptvault.IsAuthError(err), "wrong user password: %v", err)

	// edit: change a file in the workspace while the command waits
	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		_, err := c.exec(pr, "edit", "--user", "alice")
		errc <- err
	}()
	_, err = pw.Write([]byte(lines("master", "alicepw")))
	require.NoError(t, err)

	var workspace string
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(c.workDir)
		if err != nil || len(entries) != 1 {
			return false
		}
		workspace = filepath.Join(c.workDir, entries[0].Name())
		_, err = os.Stat(filepath.Join(workspace, "docs", "plan.md"))
		return err == nil
	}, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "note.txt"), []byte("edited"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "new.txt"), []byte("fresh"), 0644))

	_, err = pw.Write([]byte("\n"))
	require.NoError(t, err)
	require.NoError(t, <-errc)
	pw.Close()
	assertNoWorkspaces(t, c.workDir)

	dest := c.path("export")
	out, err = c.run(lines("master", "alicepw"), "export", container, dest, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported to")
	for name, want := range map[string]string{
		"note.txt":     "edited",
		"new.txt":      "fresh",
		"docs/plan.md": "# plan",
	} {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), name)
	}

	out, err = c.run(lines("master", "newmaster", "newmaster"), "passwd")
	require.NoError(t, err)
	assert.Contains(t, out, "Master password changed")

	_, err = c.run(lines("master"), "users")
	assert.Error(t, err)
	out, err = c.run(lines("newmaster"), "users")
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)
}

func assertNoWorkspaces(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)
	keyFile := c.path("vault.key")

	tests := []struct {
		name   string
		input  string
		args   []string
		errMsg string
	}{
		{"no key file", lines("pw"), []string{"users"}, "no key file"},
		{"password mismatch", lines("one", "two"), []string{"init", "--key-file", keyFile}, "passwords do not match"},
		{"input ends early", "", []string{"init", "--key-file", keyFile}, "failed to read password"},
		{"no user", lines("pw"), []string{"verify", "--key-file", keyFile, "x.cv"}, "no user given"},
		{"bad cipher", "", []string{"users", "--cipher", "rot13"}, "unknown cipher suite"},
		{"bad kdf", "", []string{"users", "--kdf", "md5"}, "unknown key derivation"},
		{"bad compression", "", []string{"users", "--compression", "gzip"}, "unknown compression"},
		{"extra args", "", []string{"users", "extra"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.run(tt.input, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := os.Stat(keyFile)
	assert.True(t, os.IsNotExist(err), "failed init must not write a key file")
}

func TestCLI_Options(t *testing.T) {
	c := newCLI(t)
	keyFile := c.path("vault.key")
	src := c.path("src")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "big.txt"), bytes.Repeat([]byte("z"), 1<<16), 0644))

	_, err := c.run(lines("m", "m"), "init", "--key-file", keyFile, "--kdf", "pbkdf2")
	require.NoError(t, err)
	_, err = c.run(lines("m", "pw", "pw"), "register", "bob")
	require.NoError(t, err)

	container := c.path("bob.cv")
	_, err = c.run(lines("m", "pw"), "create", src, container, "--user", "bob",
		"--cipher", "xsalsa20-poly1305", "--compression", "zstd")
	require.NoError(t, err)

	info, err := os.Stat(container)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1<<16), "zstd container should be smaller than its content")

	out, err := c.run(lines("m", "pw"), "verify", container, "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "1 files, 65536 bytes")
}

func TestFlags(t *testing.T) {
	var cf cipherFlag
	require.NoError(t, cf.Set("chacha20-poly1305"))
	assert.Equal(t, cryptvault.CipherChaCha20Poly1305, cryptvault.CipherSuite(cf))
	assert.Equal(t, "chacha20-poly1305", cf.String())
	assert.Error(t, cf.Set("auto"))

	var kf kdfFlag
	require.NoError(t, kf.Set("pbkdf2"))
	assert.Equal(t, cryptvault.KDFPBKDF2, cryptvault.KDFAlgorithm(kf))

	var zf compressionFlag
	require.NoError(t, zf.Set("zstd"))
	assert.Equal(t, "zstd", zf.String())
	assert.Equal(t, "compression", zf.Type())
}
