package main

import (
	"fmt"

	"github.com/absfs/cryptvault"
	"github.com/spf13/pflag"
)

var (
	_ pflag.Value = (*cipherFlag)(nil)
	_ pflag.Value = (*kdfFlag)(nil)
	_ pflag.Value = (*compressionFlag)(nil)
)

type cipherFlag cryptvault.CipherSuite

func (f *cipherFlag) String() string { return cryptvault.CipherSuite(*f).String() }
func (f *cipherFlag) Type() string   { return "cipher" }

func (f *cipherFlag) Set(s string) error {
	for _, c := range []cryptvault.CipherSuite{
		cryptvault.CipherAES256GCM,
		cryptvault.CipherChaCha20Poly1305,
		cryptvault.CipherXSalsa20Poly1305,
	} {
		if c.String() == s {
			*f = cipherFlag(c)
			return nil
		}
	}
	return fmt.Errorf("unknown cipher suite %q", s)
}

type kdfFlag cryptvault.KDFAlgorithm

func (f *kdfFlag) String() string { return cryptvault.KDFAlgorithm(*f).String() }
func (f *kdfFlag) Type() string   { return "kdf" }

func (f *kdfFlag) Set(s string) error {
	for _, k := range []cryptvault.KDFAlgorithm{cryptvault.KDFArgon2id, cryptvault.KDFPBKDF2} {
		if k.String() == s {
			*f = kdfFlag(k)
			return nil
		}
	}
	return fmt.Errorf("unknown key derivation %q", s)
}

type compressionFlag cryptvault.Compression

func (f *compressionFlag) String() string { return cryptvault.Compression(*f).String() }
func (f *compressionFlag) Type() string   { return "compression" }

func (f *compressionFlag) Set(s string) error {
	for _, c := range []cryptvault.Compression{cryptvault.CompressionNone, cryptvault.CompressionZstd} {
		if c.String() == s {
			*f = compressionFlag(c)
			return nil
		}
	}
	return fmt.Errorf("unknown compression %q", s)
}
