package cryptvault

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const (
	// ArchiveMagic identifies serialized archives (ASCII: "CVAR")
	ArchiveMagic = uint32(0x52415643)

	// ArchiveVersion is the current archive encoding version
	ArchiveVersion = uint8(1)

	// archiveFlagZstd marks a zstd-compressed payload
	archiveFlagZstd = uint8(1 << 0)

	archiveKnownFlags = archiveFlagZstd

	// maxEntrySize bounds a single entry's declared size
	maxEntrySize = 1 << 40

	entryKindFile = uint8(0)
	entryKindDir  = uint8(1)
)

// ArchiveEntry is one file or directory of an archive
type ArchiveEntry struct {
	Path  string // slash-separated, relative to the archive root
	Data  []byte // file content; always empty for directories
	IsDir bool
}

// Archive is an ordered snapshot of a directory tree. Directories precede
// the entries they contain, so replaying in order reconstructs the tree.
type Archive struct {
	Entries []ArchiveEntry
}

// Files returns the number of file entries
func (a *Archive) Files() int {
	n := 0
	for _, e := range a.Entries {
		if !e.IsDir {
			n++
		}
	}
	return n
}

// TotalBytes returns the summed content length of all entries
func (a *Archive) TotalBytes() int64 {
	var n int64
	for _, e := range a.Entries {
		n += int64(len(e.Data))
	}
	return n
}

// Encode writes the archive in its versioned binary form:
//
//	magic u32 | version u8 | flags u8 | payload
//	payload = count u32, then per entry: kind u8 | path len u16 | path | size u64 | data
//
// With CompressionZstd the payload is a zstd stream.
func (a *Archive) Encode(w io.Writer, compression Compression) (err error) {
	var flags uint8
	switch compression {
	case CompressionNone:
	case CompressionZstd:
		flags |= archiveFlagZstd
	default:
		return NewValidationError("compression", compression, "unsupported compression")
	}

	header := make([]byte, 6)
	binary.LittleEndian.PutUint32(header, ArchiveMagic)
	header[4] = ArchiveVersion
	header[5] = flags
	if _, err := w.Write(header); err != nil {
		return err
	}

	payload := w
	if flags&archiveFlagZstd != 0 {
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		defer func() {
			if cerr := enc.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to finish zstd stream: %w", cerr)
			}
		}()
		payload = enc
	}

	bw := bufio.NewWriter(payload)
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(a.Entries))); err != nil {
		return err
	}
	for _, e := range a.Entries {
		if len(e.Path) > 0xFFFF {
			return NewFormatError("archive", fmt.Sprintf("path too long: %d bytes", len(e.Path)), ErrInvalidHeader)
		}
		kind := entryKindFile
		if e.IsDir {
			kind = entryKindDir
		}
		if err := bw.WriteByte(kind); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(e.Path))); err != nil {
			return err
		}
		if _, err := bw.WriteString(e.Path); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(e.Data))); err != nil {
			return err
		}
		if _, err := bw.Write(e.Data); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// MarshalBinary encodes the archive without compression
func (a *Archive) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.Encode(&buf, CompressionNone); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeArchive parses an encoded archive. Unknown versions or flags,
// unsafe paths, truncation and trailing bytes are reported as FormatError.
func DecodeArchive(data []byte) (*Archive, error) {
	if len(data) < 6 {
		return nil, archiveFormatError("truncated header", io.ErrUnexpectedEOF)
	}
	if binary.LittleEndian.Uint32(data) != ArchiveMagic {
		return nil, archiveFormatError("bad magic bytes", ErrInvalidHeader)
	}
	if v := data[4]; v != ArchiveVersion {
		return nil, archiveFormatError(fmt.Sprintf("version %d", v), ErrUnsupportedVersion)
	}
	flags := data[5]
	if flags&^archiveKnownFlags != 0 {
		return nil, archiveFormatError(fmt.Sprintf("unknown flags %#x", flags), ErrInvalidHeader)
	}

	var payload io.Reader = bytes.NewReader(data[6:])
	if flags&archiveFlagZstd != 0 {
		dec, err := zstd.NewReader(payload, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, archiveFormatError("zstd", err)
		}
		defer dec.Close()
		payload = dec
	}
	r := bufio.NewReader(payload)

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, archiveFormatError("truncated entry count", err)
	}

	a := &Archive{}
	for i := uint32(0); i < count; i++ {
		e, err := readEntry(r)
		if err != nil {
			return nil, archiveFormatError(fmt.Sprintf("entry %d", i), err)
		}
		a.Entries = append(a.Entries, e)
	}

	if _, err := r.ReadByte(); err != io.EOF {
		if err == nil {
			return nil, archiveFormatError("trailing bytes", ErrInvalidHeader)
		}
		return nil, archiveFormatError("payload", err)
	}
	return a, nil
}

func readEntry(r *bufio.Reader) (ArchiveEntry, error) {
	var e ArchiveEntry

	kind, err := r.ReadByte()
	if err != nil {
		return e, err
	}
	if kind != entryKindFile && kind != entryKindDir {
		return e, fmt.Errorf("unknown entry kind %d: %w", kind, ErrInvalidHeader)
	}
	e.IsDir = kind == entryKindDir

	var pathLen uint16
	if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
		return e, err
	}
	name := make([]byte, pathLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return e, err
	}
	e.Path = string(name)
	if err := ValidateEntryPath(e.Path); err != nil {
		return e, fmt.Errorf("%q: %w", e.Path, err)
	}

	var size uint64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return e, err
	}
	if size > maxEntrySize {
		return e, fmt.Errorf("entry %q size %d out of range: %w", e.Path, size, ErrInvalidHeader)
	}
	if e.IsDir && size != 0 {
		return e, fmt.Errorf("directory %q carries %d bytes: %w", e.Path, size, ErrInvalidHeader)
	}
	if size > 0 {
		// buffer grows with the bytes actually present, not the declared size
		var buf bytes.Buffer
		if _, err := io.CopyN(&buf, r, int64(size)); err != nil {
			return e, err
		}
		e.Data = buf.Bytes()
	}
	return e, nil
}

func archiveFormatError(message string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return NewFormatError("archive", message, err)
}
