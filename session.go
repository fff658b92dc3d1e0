package cryptvault

import "fmt"

// SessionState is the container state of a session
type SessionState uint8

const (
	// SessionClosed means no container is open
	SessionClosed SessionState = iota
	// SessionOpen means a container is decrypted into a workspace
	SessionOpen
)

// String returns the string representation of the session state
func (s SessionState) String() string {
	switch s {
	case SessionClosed:
		return "closed"
	case SessionOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Session holds what one authenticated user has open: at most one
// container and its workspace. Sessions are passed explicitly to
// ContainerService operations and are not safe for concurrent use.
type Session struct {
	username      string
	key           []byte
	state         SessionState
	workspace     string
	containerPath string
}

// NewSession starts a closed session for an authenticated user
func NewSession(user *UserRecord) (*Session, error) {
	if user == nil {
		return nil, fmt.Errorf("user cannot be nil")
	}
	return NewSessionWithKey(user.Username, user.Key)
}

// NewSessionWithKey starts a closed session for a raw container key
func NewSessionWithKey(username string, key []byte) (*Session, error) {
	if err := ValidateKey(key, KeySize); err != nil {
		return nil, NewCryptoError("session", "", err)
	}
	return &Session{
		username: username,
		key:      append([]byte(nil), key...),
	}, nil
}

// Username returns the user the session belongs to
func (s *Session) Username() string { return s.username }

// State returns whether a container is open
func (s *Session) State() SessionState { return s.state }

// Workspace returns the workspace directory, or "" when closed
func (s *Session) Workspace() string { return s.workspace }

// ContainerPath returns the container file last opened, created or saved
func (s *Session) ContainerPath() string { return s.containerPath }

func (s *Session) open(workspace, containerPath string) {
	s.state = SessionOpen
	s.workspace = workspace
	s.containerPath = containerPath
}

func (s *Session) close() {
	s.state = SessionClosed
	s.workspace = ""
}
