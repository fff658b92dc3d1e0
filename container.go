package cryptvault

import (
	"bytes"
	"fmt"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContainerService turns workspace directories into encrypted container
// files and back. A container file is Encrypt(archive, userKey) with no
// cleartext header beyond the cipher envelope.
//
// Calls must be serialized by the caller; a session holds at most one open
// container.
type ContainerService struct {
	fs       absfs.FileSystem
	archiver *Archiver
	config   *Config
	log      *zap.Logger
}

// NewContainerService creates a container service over fs
func NewContainerService(fs absfs.FileSystem, archiver *Archiver, config *Config) (*ContainerService, error) {
	if fs == nil {
		return nil, fmt.Errorf("file system cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if archiver == nil {
		archiver = NewArchiver(fs, config.logger())
	}
	return &ContainerService{
		fs:       fs,
		archiver: archiver,
		config:   config,
		log:      config.logger().Named("container"),
	}, nil
}

// CreateContainer archives sourceDir, encrypts it under the session key and
// writes it to outputFile, then opens the session on a fresh workspace
// holding a copy of sourceDir. On failure neither outputFile nor the
// session is changed.
func (c *ContainerService) CreateContainer(s *Session, sourceDir, outputFile string, progress ProgressFunc) (string, error) {
	if s.state == SessionOpen {
		return "", ErrSessionOpen
	}
	if err := ValidateFilePath(outputFile); err != nil {
		return "", err
	}

	tracker := newProgressTracker(progress)
	tracker.report(0)

	ar, err := c.archiver.Build(sourceDir, tracker.span(0, 45))
	if err != nil {
		return "", err
	}
	sealed, err := c.seal(ar, s.key)
	if err != nil {
		return "", withPath(err, outputFile)
	}
	tracker.report(50)

	workspace, err := c.newWorkspace()
	if err != nil {
		return "", err
	}
	if err := c.archiver.Extract(ar, workspace, tracker.span(50, 95)); err != nil {
		c.discardWorkspace(workspace)
		return "", err
	}
	if err := writeFileAtomic(c.fs, outputFile, sealed, 0600); err != nil {
		c.discardWorkspace(workspace)
		return "", err
	}

	s.open(workspace, outputFile)
	tracker.done()

	c.log.Info("container created",
		zap.String("user", s.username),
		zap.String("container", outputFile),
		zap.String("workspace", workspace),
		zap.Int("entries", len(ar.Entries)))
	return workspace, nil
}

// OpenContainer decrypts file with the session key and extracts it into a
// fresh workspace. A wrong key or corrupted file fails before any workspace
// is created.
func (c *ContainerService) OpenContainer(s *Session, file string, progress ProgressFunc) (string, error) {
	if s.state == SessionOpen {
		return "", ErrSessionOpen
	}

	tracker := newProgressTracker(progress)
	tracker.report(0)

	ar, err := c.ReadContainer(file, s.key)
	if err != nil {
		return "", err
	}
	tracker.report(10)

	workspace, err := c.newWorkspace()
	if err != nil {
		return "", err
	}
	if err := c.archiver.Extract(ar, workspace, tracker.span(10, 100)); err != nil {
		c.discardWorkspace(workspace)
		return "", err
	}

	s.open(workspace, file)
	tracker.done()

	c.log.Info("container opened",
		zap.String("user", s.username),
		zap.String("container", file),
		zap.String("workspace", workspace),
		zap.Int("entries", len(ar.Entries)))
	return workspace, nil
}

// SaveContainer re-archives the session's workspace and atomically replaces
// the container it was opened from.
func (c *ContainerService) SaveContainer(s *Session, progress ProgressFunc) error {
	return c.SaveContainerAs(s, s.containerPath, progress)
}

// SaveContainerAs re-archives the session's workspace into outputFile and
// makes it the session's container. The previous content of outputFile
// survives any failure.
func (c *ContainerService) SaveContainerAs(s *Session, outputFile string, progress ProgressFunc) error {
	if s.state != SessionOpen {
		return ErrSessionClosed
	}
	if err := ValidateFilePath(outputFile); err != nil {
		return err
	}

	tracker := newProgressTracker(progress)
	tracker.report(0)

	ar, err := c.archiver.Build(s.workspace, tracker.span(0, 90))
	if err != nil {
		return err
	}
	sealed, err := c.seal(ar, s.key)
	if err != nil {
		return withPath(err, outputFile)
	}
	if err := writeFileAtomic(c.fs, outputFile, sealed, 0600); err != nil {
		return err
	}

	s.containerPath = outputFile
	tracker.done()

	c.log.Info("container saved",
		zap.String("user", s.username),
		zap.String("container", outputFile),
		zap.Int("entries", len(ar.Entries)),
		zap.Int("bytes", len(sealed)))
	return nil
}

// CloseAndCleanup saves the open container to its last path and deletes
// the workspace. It does nothing when the session is closed. If the save
// fails the workspace is kept and the session stays open.
func (c *ContainerService) CloseAndCleanup(s *Session, progress ProgressFunc) error {
	if s.state != SessionOpen {
		return nil
	}

	tracker := newProgressTracker(progress)
	if err := c.SaveContainer(s, tracker.span(0, 95)); err != nil {
		return err
	}

	workspace := s.workspace
	if err := c.fs.RemoveAll(workspace); err != nil {
		return NewIOError("remove", workspace, err)
	}
	s.close()
	tracker.done()

	c.log.Info("container closed", zap.String("user", s.username), zap.String("workspace", workspace))
	return nil
}

// ReadContainer decrypts and decodes a container without extracting it
func (c *ContainerService) ReadContainer(file string, key []byte) (*Archive, error) {
	if err := ValidateFilePath(file); err != nil {
		return nil, err
	}

	sealed, err := readFile(c.fs, file)
	if err != nil {
		return nil, NewIOError("read", file, err)
	}
	plain, err := Decrypt(sealed, key)
	if err != nil {
		c.log.Debug("container decrypt failed", zap.String("container", file), zap.Error(err))
		return nil, withPath(err, file)
	}
	ar, err := DecodeArchive(plain)
	if err != nil {
		return nil, withPath(err, file)
	}
	return ar, nil
}

// VerifyContainer checks that file decrypts under key and decodes cleanly
func (c *ContainerService) VerifyContainer(file string, key []byte) error {
	_, err := c.ReadContainer(file, key)
	return err
}

// seal encodes and encrypts an archive.
func (c *ContainerService) seal(ar *Archive, key []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := ar.Encode(&buf, c.config.Compression); err != nil {
		return nil, err
	}
	return EncryptWith(c.config.Cipher, buf.Bytes(), key)
}

// newWorkspace creates an empty, uniquely named workspace directory.
func (c *ContainerService) newWorkspace() (string, error) {
	root := c.config.WorkspaceDir
	if root == "" {
		root = c.fs.TempDir()
	}
	if err := c.fs.MkdirAll(root, 0700); err != nil {
		return "", NewIOError("mkdir", root, err)
	}

	workspace := joinPath(c.fs, root, "workspace-"+uuid.NewString())
	if err := c.fs.Mkdir(workspace, c.config.workspacePerm()); err != nil {
		return "", NewIOError("mkdir", workspace, err)
	}
	return workspace, nil
}

func (c *ContainerService) discardWorkspace(workspace string) {
	if err := c.fs.RemoveAll(workspace); err != nil {
		c.log.Warn("failed to remove workspace", zap.String("workspace", workspace), zap.Error(err))
	}
}
