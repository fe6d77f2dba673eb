package utils

// SeenSet remembers strings already emitted so that merged candidate lists
// keep only the first occurrence of each value. It is not safe for
// concurrent use.
type SeenSet struct {
	seen map[string]struct{}
}

// NewSeenSet starts a set that already contains exclude.
func NewSeenSet(exclude ...string) *SeenSet {
	s := &SeenSet{seen: make(map[string]struct{}, 16)}
	for _, e := range exclude {
		s.seen[e] = struct{}{}
	}
	return s
}

// Add records v and reports whether it was new.
func (s *SeenSet) Add(v string) bool {
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	return true
}

func (s *SeenSet) Len() int {
	return len(s.seen)
}
