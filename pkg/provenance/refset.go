package provenance

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// RefSet is a set of input references keyed by identity.
// The zero value is ready to use.
type RefSet struct {
	refs map[string]InputRef
}

// NewRefSet returns a set holding refs.
func NewRefSet(refs ...InputRef) *RefSet {
	s := &RefSet{}
	for _, r := range refs {
		s.Add(r)
	}
	return s
}

// Add inserts ref and reports whether it was new.
func (s *RefSet) Add(ref InputRef) bool {
	if ref == nil {
		return false
	}
	if s.refs == nil {
		s.refs = make(map[string]InputRef)
	}
	key := ref.Key()
	if _, ok := s.refs[key]; ok {
		return false
	}
	s.refs[key] = normalize(ref)
	return true
}

// Contains reports whether a reference with ref's identity is present.
func (s *RefSet) Contains(ref InputRef) bool {
	if s == nil || s.refs == nil || ref == nil {
		return false
	}
	_, ok := s.refs[ref.Key()]
	return ok
}

// HasPath reports whether any file reference has the given path.
func (s *RefSet) HasPath(path string) bool {
	_, ok := s.FileByPath(path)
	return ok
}

// FileByPath returns the first file reference with the given path.
func (s *RefSet) FileByPath(path string) (FileRef, bool) {
	if s == nil {
		return FileRef{}, false
	}
	for _, r := range s.refs {
		if f, ok := r.(FileRef); ok && f.Path == path {
			return f, true
		}
	}
	return FileRef{}, false
}

// Len returns the number of references.
func (s *RefSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.refs)
}

// Union adds every reference of other. Files are unique by path: a file
// from other whose path is already present is skipped, so the first
// recorded hash wins. Merging the same set twice is a no-op.
func (s *RefSet) Union(other *RefSet) {
	if other == nil {
		return
	}
	paths := make(map[string]struct{}, len(s.refs))
	for _, r := range s.refs {
		if f, ok := r.(FileRef); ok {
			paths[f.Path] = struct{}{}
		}
	}
	for _, key := range slices.Sorted(maps.Keys(other.refs)) {
		r := other.refs[key]
		if f, ok := r.(FileRef); ok {
			if _, seen := paths[f.Path]; seen {
				continue
			}
			paths[f.Path] = struct{}{}
		}
		s.Add(r)
	}
}

// Clone returns an independent copy. References are immutable values, so
// copying the map is a deep copy of the set.
func (s *RefSet) Clone() *RefSet {
	if s == nil || s.refs == nil {
		return &RefSet{}
	}
	return &RefSet{refs: maps.Clone(s.refs)}
}

// Sorted returns files ordered by path then hash, followed by remotes by URL.
func (s *RefSet) Sorted() []InputRef {
	if s == nil {
		return nil
	}
	out := slices.Collect(maps.Values(s.refs))
	slices.SortFunc(out, compareRefs)
	return out
}

func compareRefs(a, b InputRef) int {
	if a.Kind() != b.Kind() {
		if a.Kind() == KindFile {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Key(), b.Key())
}

// normalize stores value variants so type switches see one shape.
func normalize(ref InputRef) InputRef {
	switch r := ref.(type) {
	case *FileRef:
		return *r
	case *RemoteRef:
		return *r
	}
	return ref
}

// MarshalJSON encodes the set as a sorted array.
func (s *RefSet) MarshalJSON() ([]byte, error) {
	refs := s.Sorted()
	wire := make([]wireRef, 0, len(refs))
	for _, r := range refs {
		w, err := toWire(r)
		if err != nil {
			return nil, err
		}
		wire = append(wire, w)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes an array of references, replacing the contents.
func (s *RefSet) UnmarshalJSON(data []byte) error {
	var wire []wireRef
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to decode input set: %w", err)
	}
	s.refs = make(map[string]InputRef, len(wire))
	for i, w := range wire {
		ref, err := fromWire(w)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		s.Add(ref)
	}
	return nil
}
