package cryptvault

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/absfs/absfs"
)

// OSFS implements absfs.FileSystem on top of the host file system.
// Paths are resolved below root; an empty root passes paths through unchanged.
type OSFS struct {
	root string
	cwd  string
}

// NewOSFS creates a host file system rooted at root ("" for the whole host)
func NewOSFS(root string) *OSFS {
	return &OSFS{root: root}
}

// translatePath maps a file system path onto a host path
func (fs *OSFS) translatePath(name string) string {
	if !filepath.IsAbs(name) && fs.cwd != "" {
		name = filepath.Join(fs.cwd, name)
	}
	if fs.root == "" {
		return name
	}
	return filepath.Join(fs.root, name)
}

// Separator returns the host path separator
func (fs *OSFS) Separator() uint8 {
	return os.PathSeparator
}

// ListSeparator returns the host list separator
func (fs *OSFS) ListSeparator() uint8 {
	return os.PathListSeparator
}

// Chdir changes the directory relative names are resolved against
func (fs *OSFS) Chdir(dir string) error {
	info, err := os.Stat(fs.translatePath(dir))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "chdir", Path: dir, Err: os.ErrInvalid}
	}
	if !filepath.IsAbs(dir) && fs.cwd != "" {
		dir = filepath.Join(fs.cwd, dir)
	}
	fs.cwd = dir
	return nil
}

// Getwd returns the current working directory
func (fs *OSFS) Getwd() (string, error) {
	if fs.cwd != "" {
		return fs.cwd, nil
	}
	if fs.root != "" {
		return string(os.PathSeparator), nil
	}
	return os.Getwd()
}

// TempDir returns the temporary directory path
func (fs *OSFS) TempDir() string {
	if fs.root != "" {
		return string(os.PathSeparator) + "tmp"
	}
	return os.TempDir()
}

// Open opens a file for reading
func (fs *OSFS) Open(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// Create creates or truncates a file for writing
func (fs *OSFS) Create(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// OpenFile opens a file with the specified flags and permissions
func (fs *OSFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	return os.OpenFile(fs.translatePath(name), flag, perm)
}

// Mkdir creates a directory
func (fs *OSFS) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(fs.translatePath(name), perm)
}

// MkdirAll creates a directory and all necessary parent directories
func (fs *OSFS) MkdirAll(name string, perm os.FileMode) error {
	return os.MkdirAll(fs.translatePath(name), perm)
}

// Remove removes a file or empty directory
func (fs *OSFS) Remove(name string) error {
	return os.Remove(fs.translatePath(name))
}

// RemoveAll removes a path and any children it contains
func (fs *OSFS) RemoveAll(name string) error {
	return os.RemoveAll(fs.translatePath(name))
}

// Rename renames (moves) a file, replacing newpath if it exists
func (fs *OSFS) Rename(oldpath, newpath string) error {
	return os.Rename(fs.translatePath(oldpath), fs.translatePath(newpath))
}

// Stat returns file information
func (fs *OSFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(fs.translatePath(name))
}

// Chmod changes the mode of a file
func (fs *OSFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(fs.translatePath(name), mode)
}

// Chtimes changes the access and modification times of a file
func (fs *OSFS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return os.Chtimes(fs.translatePath(name), atime, mtime)
}

// Chown changes the owner and group of a file
func (fs *OSFS) Chown(name string, uid, gid int) error {
	return os.Chown(fs.translatePath(name), uid, gid)
}

// Truncate truncates a file to a specified size
func (fs *OSFS) Truncate(name string, size int64) error {
	return os.Truncate(fs.translatePath(name), size)
}

// joinPath appends a slash-separated relative path to a file system path.
func joinPath(fs absfs.FileSystem, root, rel string) string {
	if fs.Separator() == '/' {
		return path.Join(root, rel)
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}

// dirOf returns the parent directory of a file system path.
func dirOf(fs absfs.FileSystem, name string) string {
	if fs.Separator() == '/' {
		return path.Dir(name)
	}
	return filepath.Dir(name)
}

// baseOf returns the last element of a file system path.
func baseOf(fs absfs.FileSystem, name string) string {
	if fs.Separator() == '/' {
		return path.Base(name)
	}
	return filepath.Base(name)
}

// hostUnsafe reports whether a slash path would be split differently on a
// host that uses another separator.
func hostUnsafe(fs absfs.FileSystem, rel string) bool {
	sep := fs.Separator()
	return sep != '/' && strings.ContainsRune(rel, rune(sep))
}

// readFile reads a whole file through the file system.
func readFile(fs absfs.FileSystem, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// exists reports whether name exists, treating any stat error other than
// not-exist as an error.
func exists(fs absfs.FileSystem, name string) (bool, error) {
	_, err := fs.Stat(name)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
