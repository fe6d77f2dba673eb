package history

import (
	"strings"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/tchap/go-patricia/v2/patricia"
)

// MatchType classifies how typed input relates to a stored key.
type MatchType int

const (
	NoMatch MatchType = iota
	LeftEmptyMatch
	LeftPrefixMatch
	RightPrefixMatch
	ExactMatch
)

func (m MatchType) String() string {
	switch m {
	case LeftEmptyMatch:
		return "left_empty"
	case LeftPrefixMatch:
		return "left_prefix"
	case RightPrefixMatch:
		return "right_prefix"
	case ExactMatch:
		return "exact"
	}
	return "no_match"
}

// GetMatchType compares input lhs with stored key rhs.
//
//	("", "test")    -> LeftEmptyMatch
//	("foo", "foo")  -> ExactMatch
//	("foo", "foob") -> LeftPrefixMatch
//	("foob", "foo") -> RightPrefixMatch
func GetMatchType(lhs, rhs string) MatchType {
	if lhs == "" && rhs != "" {
		return LeftEmptyMatch
	}
	n := min(len(lhs), len(rhs))
	if n == 0 {
		return NoMatch
	}
	if lhs[:n] != rhs[:n] {
		return NoMatch
	}
	switch {
	case len(lhs) == len(rhs):
		return ExactMatch
	case len(lhs) < len(rhs):
		return LeftPrefixMatch
	}
	return RightPrefixMatch
}

// newExpandedTrie indexes the composer's possible continuations of the key base.
func newExpandedTrie(expanded []string) *patricia.Trie {
	if len(expanded) == 0 {
		return nil
	}
	trie := patricia.NewTrie()
	for _, s := range expanded {
		if s != "" {
			trie.Insert(patricia.Prefix(s), true)
		}
	}
	return trie
}

// longestExpansion returns the longest expansion that prefixes s.
func longestExpansion(trie *patricia.Trie, s string) (string, bool) {
	var longest patricia.Prefix
	found := false
	_ = trie.VisitPrefixes(patricia.Prefix(s), func(p patricia.Prefix, _ patricia.Item) error {
		if len(p) > 0 && len(p) >= len(longest) {
			longest = append(longest[:0], p...)
			found = true
		}
		return nil
	})
	return string(longest), found
}

// GetMatchTypeFromInput is GetMatchType aware of key expansion: target must
// start with base followed by one of the expanded continuations.
func GetMatchTypeFromInput(input, base string, expanded *patricia.Trie, target string) MatchType {
	if target == "" {
		return NoMatch
	}
	if expanded == nil {
		return GetMatchType(input, target)
	}
	if base == "" {
		matched, ok := longestExpansion(expanded, target)
		if !ok {
			return NoMatch
		}
		if matched == target && target == input {
			return ExactMatch
		}
		return LeftPrefixMatch
	}
	n := min(len(base), len(target))
	if base[:n] != target[:n] {
		return NoMatch
	}
	if len(target) <= len(base) {
		return RightPrefixMatch
	}
	rest := target[len(base):]
	matched, ok := longestExpansion(expanded, rest)
	if !ok {
		return NoMatch
	}
	if matched == rest && target == input {
		return ExactMatch
	}
	return LeftPrefixMatch
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// RomanFuzzyPrefixMatch reports whether prefix is a prefix of str after fixing
// exactly one roman-input slip at the first mismatch: a dropped character, two
// swapped neighbours, or a non-alphanumeric key typed in place of "-".
// An exact prefix is not a fuzzy match.
func RomanFuzzyPrefixMatch(str, prefix string) bool {
	if prefix == "" || len(prefix) > len(str) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if prefix[i] == str[i] {
			continue
		}
		if str[i] == '-' {
			if !isAlnum(prefix[i]) {
				replaced := []byte(prefix)
				replaced[i] = '-'
				if strings.HasPrefix(str, string(replaced)) {
					return true
				}
			}
			return false
		}
		inserted := prefix[:i] + str[i:i+1] + prefix[i:]
		if strings.HasPrefix(str, inserted) {
			return true
		}
		if i+1 < len(prefix) {
			swapped := []byte(prefix)
			swapped[i], swapped[i+1] = swapped[i+1], swapped[i]
			if strings.HasPrefix(str, string(swapped)) {
				return true
			}
		}
		return false
	}
	return false
}

// MaybeRomanMisspelledKey flags kana keys carrying exactly one stray
// character, a letter or a symbol, left behind by a roman-input slip such as
// "こんぴゅーｔ" or "いんた=ねっと".
func MaybeRomanMisspelledKey(key string) bool {
	hiragana, alpha, unknown := 0, 0, 0
	for _, r := range key {
		switch {
		case r == 'ー' || kana.RuneScript(r) == kana.Hiragana:
			hiragana++
		case kana.RuneScript(r) == kana.Alphabet:
			alpha++
		default:
			unknown++
		}
	}
	return hiragana > 0 && ((alpha == 1 && unknown == 0) || (alpha == 0 && unknown == 1))
}
