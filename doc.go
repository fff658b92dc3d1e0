// Package cryptvault stores directory trees as encrypted containers owned by
// password-authenticated users, working through the AbsFs file system
// abstraction.
//
// # Overview
//
// A vault has one key file protected by a master password. The key file
// holds a random master key, sealed under a key derived from the master
// password, and the user registry, sealed under the master key. Each
// registered user has an Argon2id password verifier and a random 256-bit
// container key.
//
// A user works on one container at a time. Opening a container decrypts it
// into a private workspace directory; saving re-archives the workspace and
// atomically replaces the container file; closing saves and deletes the
// workspace.
//
// # Supported Cipher Suites
//
//   - AES-256-GCM (default)
//   - ChaCha20-Poly1305
//   - XSalsa20-Poly1305 (NaCl secretbox)
//
// Every message is sealed with a fresh random nonce and carries its own
// suite identifier, so containers written with different suites can be
// read by the same vault.
//
// # Basic Usage
//
//	v, err := cryptvault.New(cryptvault.NewOSFS(""), nil)
//	if err != nil {
//	    panic(err)
//	}
//
//	reg, err := v.InitRegistry("/home/me/vault.key", []byte("master password"))
//	if err != nil {
//	    panic(err)
//	}
//	if _, err := reg.Register("alice", []byte("alice password")); err != nil {
//	    panic(err)
//	}
//
//	s, err := v.Login(reg, "alice", []byte("alice password"))
//	if err != nil {
//	    panic(err)
//	}
//	ws, err := v.Containers.CreateContainer(s, "/home/me/notes", "/home/me/notes.cv", nil)
//	// edit files below ws ...
//	err = v.Containers.CloseAndCleanup(s, nil)
//
// Container operations block. To keep a UI responsive, run them with Go:
//
//	task := cryptvault.Go(func(p cryptvault.ProgressFunc) (string, error) {
//	    return v.Containers.OpenContainer(s, "/home/me/notes.cv", p)
//	}, showProgress)
//	ws, err := task.Wait()
//
// Calls on one session must still be serialized.
//
// # Formats
//
// Encrypted envelope:
//   - Version (1 byte)
//   - Cipher suite (1 byte)
//   - Nonce (12 or 24 bytes, fixed by the suite)
//   - Ciphertext and authentication tag
//
// Key file ("CVKF"): KDF parameters and salt, the wrapped master key and
// the sealed registry. Archive ("CVAR"): an ordered list of directory and
// file entries, optionally zstd compressed. All integers are little endian.
//
// # Security Considerations
//
// Protected Against:
//   - Reading containers or the registry without the right password
//   - Tampering with container or key files (authenticated encryption)
//   - Offline brute force of the master password (Argon2id by default)
//
// Not Protected Against:
//   - Anyone with access to a decrypted workspace while it is open
//   - Memory dumps while keys are loaded
//   - Container file sizes and modification times
package cryptvault
