package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"mcqq/pkg/message"
)

// ProtocolVersion is sent in every hello.
const ProtocolVersion = "1.0.0"

// Frame types.
const (
	TypeHello   = "hello"
	TypeMessage = "message"
	TypeError   = "error"
)

var (
	// ErrIncompatible is returned when a peer speaks another major version.
	ErrIncompatible = errors.New("incompatible bridge protocol")
	// ErrHandshake is returned when the first frame is not a valid hello.
	ErrHandshake = errors.New("bridge handshake failed")
)

var compatible = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// CheckVersion reports whether a peer's protocol version is accepted.
func CheckVersion(v string) error {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: bad version %q", ErrIncompatible, v)
	}
	if !compatible.Check(sv) {
		return fmt.Errorf("%w: %s", ErrIncompatible, v)
	}
	return nil
}

// Envelope is one frame on the bridge socket. Info carries the full source
// chain so every hop can refuse to send toward a server already in it.
type Envelope struct {
	Type    string                 `json:"type"`
	ID      string                 `json:"id,omitempty"`
	Server  string                 `json:"server"`
	Version string                 `json:"version,omitempty"`
	Info    *message.ProcessedInfo `json:"info,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// seenSet remembers message ids for ttl.
type seenSet struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	items     map[string]time.Time
	lastSweep time.Time
}

func newSeenSet(ttl time.Duration) *seenSet {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &seenSet{ttl: ttl, now: time.Now, items: make(map[string]time.Time)}
}

// Add records id and reports whether it was new. Empty ids are always new.
func (s *seenSet) Add(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > s.ttl {
		for k, exp := range s.items {
			if now.After(exp) {
				delete(s.items, k)
			}
		}
		s.lastSweep = now
	}
	if exp, ok := s.items[id]; ok && !now.After(exp) {
		return false
	}
	s.items[id] = now.Add(s.ttl)
	return true
}

func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
