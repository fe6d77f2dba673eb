package history

import (
	"slices"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/cespare/xxhash/v2"
)

// Entry is one learned (key, value) association with its outgoing chain links.
// NextEntries holds fingerprints, not pointers, so a link may dangle after
// eviction and simply fails lookup.
type Entry struct {
	Key            string   `msgpack:"k"`
	Value          string   `msgpack:"v"`
	Description    string   `msgpack:"d,omitempty"`
	LastAccessTime int64    `msgpack:"t"`
	SuggestionFreq uint32   `msgpack:"sf,omitempty"`
	ConversionFreq uint32   `msgpack:"cf,omitempty"`
	ShownFreq      uint32   `msgpack:"sh,omitempty"`
	Removed        bool     `msgpack:"r,omitempty"`
	NextEntries    []uint32 `msgpack:"n,omitempty"`

	// Set only on scratch copies built during a single Predict call.
	BigramBoost        bool `msgpack:"-"`
	SpellingCorrection bool `msgpack:"-"`
	TypingCorrection   bool `msgpack:"-"`
}

// Fingerprint identifies a (key, value) pair. Collisions merge two pairs into
// one slot.
func Fingerprint(key, value string) uint32 {
	d := xxhash.New()
	d.WriteString(key)
	d.WriteString("\t")
	d.WriteString(value)
	return uint32(d.Sum64())
}

// EntryFingerprint is Fingerprint of the entry's own key and value.
func EntryFingerprint(e *Entry) uint32 {
	return Fingerprint(e.Key, e.Value)
}

// Clone returns a deep copy safe to mutate outside the store.
func (e *Entry) Clone() *Entry {
	c := *e
	c.NextEntries = slices.Clone(e.NextEntries)
	return &c
}

// HasNext reports whether fp is one of the outgoing links.
func (e *Entry) HasNext(fp uint32) bool {
	return slices.Contains(e.NextEntries, fp)
}

// AddNext links fp after e unless it is already linked.
func (e *Entry) AddNext(fp uint32) bool {
	if e.HasNext(fp) {
		return false
	}
	e.NextEntries = append(e.NextEntries, fp)
	return true
}

// EraseNextEntries drops every link to fp and reports whether any was removed.
func EraseNextEntries(fp uint32, e *Entry) bool {
	before := len(e.NextEntries)
	e.NextEntries = slices.DeleteFunc(e.NextEntries, func(n uint32) bool { return n == fp })
	if len(e.NextEntries) == 0 {
		e.NextEntries = nil
	}
	return len(e.NextEntries) != before
}

// GetScore ranks entries in the priority queue. Recency dominates at equal
// length, shorter values win at equal recency and a bigram boost is worth a
// week of recency.
func GetScore(e *Entry) int64 {
	var boost int64
	if e.BigramBoost {
		boost = bigramBoost
	}
	return e.LastAccessTime - int64(kana.CharsLen(e.Value)) + boost
}

const bigramBoost int64 = 7 * 24 * 60 * 60
