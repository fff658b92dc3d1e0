package cryptvault

import (
	"fmt"
	"os"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
)

// writeFileAtomic writes data next to name under a temporary name, syncs it,
// and renames it over name. On failure the temporary file is removed and any
// previous content of name is left untouched.
func writeFileAtomic(fs absfs.FileSystem, name string, data []byte, perm os.FileMode) (err error) {
	tmp := joinPath(fs, dirOf(fs, name), fmt.Sprintf(".%s.tmp-%s", baseOf(fs, name), uuid.NewString()))

	f, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return NewIOError("create", tmp, err)
	}
	defer func() {
		if err != nil {
			_ = fs.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return NewIOError("write", tmp, err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return NewIOError("sync", tmp, err)
	}
	if err = f.Close(); err != nil {
		return NewIOError("close", tmp, err)
	}
	if err = fs.Rename(tmp, name); err != nil {
		return NewIOError("rename", name, err)
	}
	return nil
}
