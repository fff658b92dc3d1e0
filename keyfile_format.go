package cryptvault

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// KeyFileMagic identifies key files (ASCII: "CVKF")
	KeyFileMagic = uint32(0x464B5643)

	// KeyFileVersion is the current key file format version
	KeyFileVersion = uint8(1)

	// maxKeyFileSection bounds the wrapped key and registry sections
	maxKeyFileSection = 64 << 20
)

// KeyFileHeader holds the plaintext parameters needed to re-derive the
// key-encryption key.
type KeyFileHeader struct {
	Magic   uint32    // Magic bytes to identify key files
	Version uint8     // File format version
	KDF     KDFParams // Key derivation parameters
	Salt    []byte    // Salt for key derivation
}

// KeyFile is the decoded on-disk record
type KeyFile struct {
	Header      KeyFileHeader
	WrappedKey  []byte // master key sealed under the key-encryption key
	RegistryBox []byte // registry blob sealed under the master key
}

// WriteTo writes the key file to the given writer
func (kf *KeyFile) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)
	h := kf.Header

	fields := []any{
		h.Magic,
		h.Version,
		uint8(h.KDF.Algorithm),
		uint8(h.KDF.HashFunc),
		h.KDF.Iterations,
		h.KDF.Memory,
		h.KDF.Parallelism,
		uint16(len(h.Salt)),
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return 0, fmt.Errorf("failed to write key file header: %w", err)
		}
	}
	buf.Write(h.Salt)

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(kf.WrappedKey))); err != nil {
		return 0, fmt.Errorf("failed to write wrapped key size: %w", err)
	}
	buf.Write(kf.WrappedKey)

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(kf.RegistryBox))); err != nil {
		return 0, fmt.Errorf("failed to write registry size: %w", err)
	}
	buf.Write(kf.RegistryBox)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadKeyFile decodes a key file, rejecting unknown versions and trailing data
func ReadKeyFile(data []byte) (*KeyFile, error) {
	r := bytes.NewReader(data)
	kf := &KeyFile{}
	h := &kf.Header

	if err := binary.Read(r, binary.LittleEndian, &h.Magic); err != nil {
		return nil, keyFileFormatError("truncated header", err)
	}
	if h.Magic != KeyFileMagic {
		return nil, keyFileFormatError("bad magic bytes", ErrInvalidHeader)
	}

	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return nil, keyFileFormatError("truncated header", err)
	}
	if h.Version != KeyFileVersion {
		return nil, keyFileFormatError(fmt.Sprintf("version %d", h.Version), ErrUnsupportedVersion)
	}

	var algorithm, hashFunc uint8
	var saltSize uint16
	fields := []any{&algorithm, &hashFunc, &h.KDF.Iterations, &h.KDF.Memory, &h.KDF.Parallelism, &saltSize}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, keyFileFormatError("truncated header", err)
		}
	}
	h.KDF.Algorithm = KDFAlgorithm(algorithm)
	h.KDF.HashFunc = HashFunc(hashFunc)
	if err := h.KDF.validate(); err != nil {
		return nil, keyFileFormatError(err.Error(), ErrInvalidHeader)
	}
	if saltSize == 0 {
		return nil, keyFileFormatError("salt cannot be empty", ErrInvalidHeader)
	}

	h.Salt = make([]byte, saltSize)
	if _, err := io.ReadFull(r, h.Salt); err != nil {
		return nil, keyFileFormatError("truncated salt", err)
	}

	var err error
	if kf.WrappedKey, err = readSection(r); err != nil {
		return nil, keyFileFormatError("wrapped key", err)
	}
	if kf.RegistryBox, err = readSection(r); err != nil {
		return nil, keyFileFormatError("registry", err)
	}
	if r.Len() != 0 {
		return nil, keyFileFormatError(fmt.Sprintf("%d trailing bytes", r.Len()), ErrInvalidHeader)
	}

	return kf, nil
}

// readSection reads a u32 length-prefixed byte section.
func readSection(r *bytes.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size == 0 || size > maxKeyFileSection || int(size) > r.Len() {
		return nil, fmt.Errorf("invalid section size %d: %w", size, io.ErrUnexpectedEOF)
	}
	section := make([]byte, size)
	if _, err := io.ReadFull(r, section); err != nil {
		return nil, err
	}
	return section, nil
}

func keyFileFormatError(message string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return NewFormatError("key file", message, err)
}
