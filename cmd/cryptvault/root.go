package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/absfs/cryptvault"
	"github.com/absfs/cryptvault/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	in     *bufio.Reader
	stdin  *os.File
	out    io.Writer
	errOut io.Writer

	keyFile     string
	user        string
	configPath  string
	verbose     bool
	cipher      cipherFlag
	kdf         kdfFlag
	compression compressionFlag

	log   *zap.Logger
	store *config.Store

	// tune adjusts the vault config before use; tests lower the KDF cost.
	tune func(*cryptvault.Config)
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	a := &app{
		in:          bufio.NewReader(in),
		out:         out,
		errOut:      errOut,
		cipher:      cipherFlag(cryptvault.CipherAES256GCM),
		kdf:         kdfFlag(cryptvault.KDFArgon2id),
		compression: compressionFlag(cryptvault.CompressionNone),
		log:         zap.NewNop(),
	}
	if f, ok := in.(*os.File); ok {
		a.stdin = f
	}
	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cryptvault",
		Short:         "Encrypted multi-user file containers",
		Long:          `Creates, edits and verifies encrypted containers keyed per user by a password protected key file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.keyFile, "key-file", "k", "", "key file holding the user registry (defaults to the last one used)")
	flags.StringVarP(&a.user, "user", "u", "", "user to act as")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&a.configPath, "config", "", "settings file (defaults to the user config directory)")
	flags.Var(&a.cipher, "cipher", "cipher suite for new data: aes-256-gcm, chacha20-poly1305 or xsalsa20-poly1305")
	flags.Var(&a.kdf, "kdf", "key derivation for the key file: argon2id or pbkdf2")
	flags.Var(&a.compression, "compression", "archive compression for containers: none or zstd")
	_ = flags.MarkHidden("config")

	root.AddCommand(
		newInitCmd(a),
		newRegisterCmd(a),
		newUsersCmd(a),
		newCreateCmd(a),
		newEditCmd(a),
		newVerifyCmd(a),
		newExportCmd(a),
		newPasswdCmd(a),
	)
	return root
}

// setup builds the logger and loads the remembered settings.
func (a *app) setup() error {
	if a.verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		a.log = log
	}

	path := a.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	store, err := config.Load(path)
	if err != nil {
		return err
	}
	a.store = store
	a.log.Debug("settings loaded", zap.String("path", path))
	return nil
}

// interactive reports whether both prompts and spinners can use the terminal.
func (a *app) interactive() bool {
	if a.stdin == nil || !term.IsTerminal(int(a.stdin.Fd())) {
		return false
	}
	f, ok := a.errOut.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *app) vault() (*cryptvault.Vault, error) {
	cfg := cryptvault.DefaultConfig()
	cfg.Cipher = cryptvault.CipherSuite(a.cipher)
	cfg.KeyDerivation = cryptvault.KDFAlgorithm(a.kdf)
	cfg.Compression = cryptvault.Compression(a.compression)
	cfg.Logger = a.log
	if a.tune != nil {
		a.tune(cfg)
	}
	return cryptvault.New(cryptvault.NewOSFS(""), cfg)
}

// resolveKeyFile returns the --key-file flag or the remembered key file.
func (a *app) resolveKeyFile() (string, error) {
	path := a.keyFile
	if path == "" {
		path = a.store.LastKeyPath()
	}
	if path == "" {
		return "", errors.New("no key file given; pass --key-file")
	}
	return filepath.Abs(path)
}

func (a *app) requireUser() (string, error) {
	if a.user == "" {
		return "", errors.New("no user given; pass --user")
	}
	return a.user, nil
}

// resolveContainer returns the argument or the user's remembered container.
func (a *app) resolveContainer(args []string) (string, error) {
	if len(args) > 0 {
		return filepath.Abs(args[0])
	}
	if p := a.store.LastContainerPath(a.user); p != "" {
		return p, nil
	}
	return "", errors.New("no container given")
}

// openRegistry prompts for the master password and loads the registry.
func (a *app) openRegistry(v *cryptvault.Vault) (*cryptvault.UserRegistry, error) {
	keyFile, err := a.resolveKeyFile()
	if err != nil {
		return nil, err
	}
	password, err := a.readPassword("Master password: ")
	if err != nil {
		return nil, err
	}
	reg, err := v.OpenRegistry(keyFile, password)
	if err != nil {
		return nil, err
	}
	a.store.SetLastKeyPath(keyFile)
	return reg, nil
}

// authenticate opens the registry and checks the --user password.
func (a *app) authenticate(v *cryptvault.Vault) (*cryptvault.UserRecord, error) {
	username, err := a.requireUser()
	if err != nil {
		return nil, err
	}
	reg, err := a.openRegistry(v)
	if err != nil {
		return nil, err
	}
	password, err := a.readPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return nil, err
	}
	return reg.Authenticate(username, password)
}

// login authenticates the --user and starts a session.
func (a *app) login(v *cryptvault.Vault) (*cryptvault.Session, error) {
	u, err := a.authenticate(v)
	if err != nil {
		return nil, err
	}
	return cryptvault.NewSession(u)
}

// remember persists settings; failures only warn.
func (a *app) remember() {
	if err := a.store.Save(); err != nil {
		a.log.Warn("failed to save settings", zap.Error(err))
		a.warnf("could not remember settings: %v", err)
	}
}
