package cryptvault

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

// extractChunkSize is the write granularity used for byte progress.
const extractChunkSize = 32 * 1024

// Archiver converts directory trees to archives and back through an
// absfs.FileSystem. Archive build and extraction are sequential.
type Archiver struct {
	fs  absfs.FileSystem
	log *zap.Logger
}

// NewArchiver creates an archiver over fs. A nil logger disables logging.
func NewArchiver(fs absfs.FileSystem, log *zap.Logger) *Archiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Archiver{fs: fs, log: log.Named("archiver")}
}

// Build walks root in lexicographic pre-order and returns one entry per
// directory and file below it. Progress is reported as files read over
// total files; an empty tree reports a single 100.
func (a *Archiver) Build(root string, progress ProgressFunc) (*Archive, error) {
	info, err := a.fs.Stat(root)
	if err != nil {
		return nil, NewIOError("stat", root, err)
	}
	if !info.IsDir() {
		return nil, NewIOError("build", root, fmt.Errorf("not a directory"))
	}

	ar := &Archive{}
	if err := a.walk(root, "", ar); err != nil {
		return nil, err
	}

	tracker := newProgressTracker(progress)
	total := int64(ar.Files())
	var processed int64
	for i := range ar.Entries {
		e := &ar.Entries[i]
		if e.IsDir {
			continue
		}
		name := joinPath(a.fs, root, e.Path)
		data, err := readFile(a.fs, name)
		if err != nil {
			return nil, NewIOError("read", name, err)
		}
		e.Data = data
		processed++
		tracker.report(fraction(processed, total))
	}
	tracker.done()

	a.log.Debug("archive built",
		zap.String("root", root),
		zap.Int("entries", len(ar.Entries)),
		zap.Int64("bytes", ar.TotalBytes()))
	return ar, nil
}

// walk appends entries for the children of dir, recursing into directories.
func (a *Archiver) walk(dir, rel string, ar *Archive) error {
	name := dir
	if rel != "" {
		name = joinPath(a.fs, dir, rel)
	}

	children, err := a.readDir(name)
	if err != nil {
		return err
	}

	for _, child := range children {
		childRel := child.Name()
		if rel != "" {
			childRel = rel + "/" + child.Name()
		}
		switch {
		case child.IsDir():
			ar.Entries = append(ar.Entries, ArchiveEntry{Path: childRel, IsDir: true})
			if err := a.walk(dir, childRel, ar); err != nil {
				return err
			}
		case child.Mode().IsRegular():
			ar.Entries = append(ar.Entries, ArchiveEntry{Path: childRel})
		default:
			a.log.Warn("skipping non-regular file", zap.String("path", childRel), zap.Stringer("mode", child.Mode()))
		}
	}
	return nil
}

// readDir lists a directory sorted by name.
func (a *Archiver) readDir(name string) ([]os.FileInfo, error) {
	f, err := a.fs.Open(name)
	if err != nil {
		return nil, NewIOError("open", name, err)
	}
	defer f.Close()

	all, err := f.Readdir(-1)
	if err != nil && err != io.EOF {
		return nil, NewIOError("readdir", name, err)
	}
	// some in-memory file systems list the self and parent links
	infos := all[:0]
	for _, info := range all {
		if info.Name() != "." && info.Name() != ".." {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

// Extract replays the archive below dest in entry order. Directories are
// created with their parents; files are written over any existing file.
// Progress is bytes written over the archive's total bytes; an archive with
// no content reports a single 100.
func (a *Archiver) Extract(ar *Archive, dest string, progress ProgressFunc) error {
	for _, e := range ar.Entries {
		if err := ValidateEntryPath(e.Path); err != nil || hostUnsafe(a.fs, e.Path) {
			return NewFormatError("archive", fmt.Sprintf("entry %q", e.Path), ErrUnsafePath)
		}
	}

	if err := a.fs.MkdirAll(dest, 0755); err != nil {
		return NewIOError("mkdir", dest, err)
	}

	tracker := newProgressTracker(progress)
	total := ar.TotalBytes()
	var written int64

	for _, e := range ar.Entries {
		target := joinPath(a.fs, dest, e.Path)
		if e.IsDir {
			if err := a.fs.MkdirAll(target, 0755); err != nil {
				return NewIOError("mkdir", target, err)
			}
			continue
		}

		if err := a.fs.MkdirAll(dirOf(a.fs, target), 0755); err != nil {
			return NewIOError("mkdir", dirOf(a.fs, target), err)
		}
		f, err := a.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return NewIOError("create", target, err)
		}
		for off := 0; off < len(e.Data); off += extractChunkSize {
			end := min(off+extractChunkSize, len(e.Data))
			if _, err := f.Write(e.Data[off:end]); err != nil {
				f.Close()
				return NewIOError("write", target, err)
			}
			written += int64(end - off)
			tracker.report(fraction(written, total))
		}
		if err := f.Close(); err != nil {
			return NewIOError("close", target, err)
		}
	}
	tracker.done()

	a.log.Debug("archive extracted",
		zap.String("dest", dest),
		zap.Int("entries", len(ar.Entries)),
		zap.Int64("bytes", total))
	return nil
}

// Import copies a file or directory from the host side of the file system
// into dir, keeping its base name. It is the building block for adding
// individual files to an open workspace.
func (a *Archiver) Import(src, dir string, progress ProgressFunc) error {
	info, err := a.fs.Stat(src)
	if err != nil {
		return NewIOError("stat", src, err)
	}
	base := baseOf(a.fs, src)

	if info.IsDir() {
		ar, err := a.Build(src, nil)
		if err != nil {
			return err
		}
		return a.Extract(ar, joinPath(a.fs, dir, base), progress)
	}

	data, err := readFile(a.fs, src)
	if err != nil {
		return NewIOError("read", src, err)
	}
	ar := &Archive{Entries: []ArchiveEntry{{Path: base, Data: data}}}
	return a.Extract(ar, dir, progress)
}
