package cryptvault

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

const (
	// RegistryMagic identifies registry blobs (ASCII: "CVUR")
	RegistryMagic = uint32(0x52555643)

	// RegistryVersion is the current registry encoding version
	RegistryVersion = uint8(1)
)

// encodeRegistry serializes users field by field, sorted by username.
func encodeRegistry(users map[string]*UserRecord) ([]byte, error) {
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := new(bytes.Buffer)
	w := &fieldWriter{buf: buf}
	w.u32(RegistryMagic)
	w.u8(RegistryVersion)
	w.u32(uint32(len(names)))

	for _, name := range names {
		u := users[name]
		w.bytes16([]byte(u.Username))
		w.u32(u.Password.Memory)
		w.u32(u.Password.Iterations)
		w.u8(u.Password.Parallelism)
		w.bytes16(u.Password.Salt)
		w.bytes16(u.Password.Hash)
		w.bytes16(u.Key)
	}
	if w.err != nil {
		return nil, fmt.Errorf("failed to encode registry: %w", w.err)
	}
	return buf.Bytes(), nil
}

// decodeRegistry parses a registry blob, rejecting unknown versions,
// duplicate usernames and trailing bytes.
func decodeRegistry(data []byte) (map[string]*UserRecord, error) {
	r := &fieldReader{r: bytes.NewReader(data)}

	if magic := r.u32(); r.err == nil && magic != RegistryMagic {
		return nil, registryFormatError("bad magic bytes", ErrInvalidHeader)
	}
	if version := r.u8(); r.err == nil && version != RegistryVersion {
		return nil, registryFormatError(fmt.Sprintf("version %d", version), ErrUnsupportedVersion)
	}
	count := r.u32()
	if r.err != nil {
		return nil, registryFormatError("truncated header", r.err)
	}

	users := make(map[string]*UserRecord)
	for i := uint32(0); i < count; i++ {
		u := &UserRecord{}
		u.Username = string(r.bytes16())
		u.Password.Memory = r.u32()
		u.Password.Iterations = r.u32()
		u.Password.Parallelism = r.u8()
		u.Password.Salt = r.bytes16()
		u.Password.Hash = r.bytes16()
		u.Key = r.bytes16()
		if r.err != nil {
			return nil, registryFormatError(fmt.Sprintf("truncated record %d", i), r.err)
		}
		if err := ValidateUsername(u.Username); err != nil {
			return nil, registryFormatError(fmt.Sprintf("record %d", i), err)
		}
		if len(u.Key) != KeySize {
			return nil, registryFormatError(fmt.Sprintf("record %d: bad user key size %d", i, len(u.Key)), ErrInvalidKey)
		}
		if _, dup := users[u.Username]; dup {
			return nil, registryFormatError(fmt.Sprintf("duplicate user %q", u.Username), ErrInvalidHeader)
		}
		users[u.Username] = u
	}

	if n := r.r.Len(); n != 0 {
		return nil, registryFormatError(fmt.Sprintf("%d trailing bytes", n), ErrInvalidHeader)
	}
	return users, nil
}

func registryFormatError(message string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return NewFormatError("registry", message, err)
}

// fieldWriter appends little-endian fields and keeps the first error.
type fieldWriter struct {
	buf *bytes.Buffer
	err error
}

func (w *fieldWriter) u8(v uint8) {
	if w.err == nil {
		w.err = w.buf.WriteByte(v)
	}
}

func (w *fieldWriter) u32(v uint32) {
	if w.err == nil {
		w.err = binary.Write(w.buf, binary.LittleEndian, v)
	}
}

func (w *fieldWriter) bytes16(b []byte) {
	if w.err != nil {
		return
	}
	if len(b) > 0xFFFF {
		w.err = fmt.Errorf("field too long: %d bytes", len(b))
		return
	}
	w.err = binary.Write(w.buf, binary.LittleEndian, uint16(len(b)))
	if w.err == nil {
		_, w.err = w.buf.Write(b)
	}
}

// fieldReader reads little-endian fields and keeps the first error.
type fieldReader struct {
	r   *bytes.Reader
	err error
}

func (r *fieldReader) u8() uint8 {
	var v uint8
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, &v)
	}
	return v
}

func (r *fieldReader) u32() uint32 {
	var v uint32
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, &v)
	}
	return v
}

func (r *fieldReader) bytes16() []byte {
	var n uint16
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, &n)
	}
	if r.err != nil {
		return nil
	}
	if int(n) > r.r.Len() {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := make([]byte, n)
	_, r.err = io.ReadFull(r.r, b)
	return b
}
