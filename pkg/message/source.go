package message

import (
	"encoding/json"
	"strings"
)

// Source is the chain of hops a message went through, oldest first.
// The chain only grows; a hop that is already present is never added again.
type Source struct {
	chain []string
}

// NewSource creates a source whose chain starts with the given hops.
// Empty and duplicate names are skipped.
func NewSource(hops ...string) Source {
	var s Source
	for _, h := range hops {
		s.Add(h)
	}
	return s
}

// Add appends hop to the chain unless it is empty or already present.
func (s *Source) Add(hop string) {
	if hop == "" || s.Contains(hop) {
		return
	}
	s.chain = append(s.chain, hop)
}

// Origin is the first hop, or "" for an empty source.
func (s Source) Origin() string {
	if len(s.chain) == 0 {
		return ""
	}
	return s.chain[0]
}

// Current is the last hop, or "" for an empty source.
func (s Source) Current() string {
	if len(s.chain) == 0 {
		return ""
	}
	return s.chain[len(s.chain)-1]
}

// Contains reports whether hop appears anywhere in the chain.
func (s Source) Contains(hop string) bool {
	for _, h := range s.chain {
		if h == hop {
			return true
		}
	}
	return false
}

// IsFrom reports whether the message entered the system at hop.
func (s Source) IsFrom(hop string) bool {
	return len(s.chain) > 0 && s.chain[0] == hop
}

// IsCurrent reports whether hop is the latest hop.
func (s Source) IsCurrent(hop string) bool {
	return len(s.chain) > 0 && s.chain[len(s.chain)-1] == hop
}

// PassedThrough reports whether hop appears after the origin.
func (s Source) PassedThrough(hop string) bool {
	for i := 1; i < len(s.chain); i++ {
		if s.chain[i] == hop {
			return true
		}
	}
	return false
}

// Len returns the number of hops.
func (s Source) Len() int { return len(s.chain) }

// Chain returns a copy of the hops.
func (s Source) Chain() []string {
	out := make([]string, len(s.chain))
	copy(out, s.chain)
	return out
}

// Clone returns an independent copy, so that adding a hop to the clone does
// not affect messages sharing the original.
func (s Source) Clone() Source {
	return Source{chain: s.Chain()}
}

// String joins the chain with " > ".
func (s Source) String() string {
	return strings.Join(s.chain, " > ")
}

// MarshalJSON encodes the chain as a string array.
func (s Source) MarshalJSON() ([]byte, error) {
	if s.chain == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.chain)
}

// UnmarshalJSON decodes a string array, dropping empty and duplicate hops.
func (s *Source) UnmarshalJSON(data []byte) error {
	var hops []string
	if err := json.Unmarshal(data, &hops); err != nil {
		return err
	}
	*s = NewSource(hops...)
	return nil
}
