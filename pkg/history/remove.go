package history

import (
	"slices"
	"strings"
)

// RemoveNgramChainResult is the outcome of walking a chain toward a target.
type RemoveNgramChainResult int

const (
	// NotFound means the chain diverged from the target.
	NotFound RemoveNgramChainResult = iota
	// NotTarget means the chain stayed a prefix of the target but never reached it.
	NotTarget
	// Tail means the entry just visited completes the target.
	Tail
	// Done means an edge leading to the target was cut.
	Done
)

func (r RemoveNgramChainResult) String() string {
	switch r {
	case NotTarget:
		return "not_target"
	case Tail:
		return "tail"
	case Done:
		return "done"
	}
	return "not_found"
}

// RemoveNgramChain walks from e looking for a path whose joined key and value
// equal the target, starting from the already walked prefix. The edge into the
// last entry of each such path is cut; no entry is deleted.
func (p *Predictor) RemoveNgramChain(targetKey, targetValue string, e *Entry, walkedKey, walkedValue string) RemoveNgramChainResult {
	key := walkedKey + e.Key
	value := walkedValue + e.Value
	if key == targetKey && value == targetValue {
		return Tail
	}
	if e.Key == "" || e.Value == "" || !strings.HasPrefix(targetKey, key) || !strings.HasPrefix(targetValue, value) {
		return NotFound
	}
	result := NotTarget
	for _, fp := range slices.Clone(e.NextEntries) {
		next := p.store.Lookup(fp)
		if next == nil {
			continue
		}
		switch p.RemoveNgramChain(targetKey, targetValue, next, key, value) {
		case Tail:
			EraseNextEntries(fp, e)
			result = Done
		case Done:
			result = Done
		}
	}
	return result
}

// ClearHistoryEntry forgets (key, value): the unigram is tombstoned and every
// chain edge that spells it is cut. It reports whether anything changed.
func (p *Predictor) ClearHistoryEntry(key, value string) bool {
	if key == "" || value == "" {
		return false
	}
	p.mu.Lock()
	found := false
	if e := p.store.Lookup(Fingerprint(key, value)); e != nil {
		e.Removed = true
		found = true
	}
	p.store.Each(func(_ uint32, e *Entry) bool {
		if e.Key == "" || !strings.HasPrefix(key, e.Key) || !strings.HasPrefix(value, e.Value) {
			return true
		}
		if p.RemoveNgramChain(key, value, e, "", "") == Done {
			found = true
		}
		return true
	})
	p.mu.Unlock()

	if found {
		p.Sync()
	}
	return found
}

// ClearAllHistory empties the store and persists the empty state when a
// storage is configured.
func (p *Predictor) ClearAllHistory() bool {
	p.mu.Lock()
	p.store.Clear()
	p.reverts.Purge()
	p.mu.Unlock()
	p.Sync()
	return true
}

// ClearUnusedHistory drops entries never picked from a suggestion.
func (p *Predictor) ClearUnusedHistory() bool {
	p.mu.Lock()
	var unused []uint32
	p.store.Each(func(fp uint32, e *Entry) bool {
		if e.SuggestionFreq == 0 {
			unused = append(unused, fp)
		}
		return true
	})
	for _, fp := range unused {
		p.store.Erase(fp)
	}
	p.mu.Unlock()
	p.Sync()
	return true
}
