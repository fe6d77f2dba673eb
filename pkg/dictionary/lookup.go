package dictionary

import (
	"sort"
	"unicode/utf8"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/tchap/go-patricia/v2/patricia"
)

// LookupExact returns the tokens whose key equals key.
func (l *Loader) LookupExact(key string) []Token {
	if key == "" {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	item := l.trie.Get(patricia.Prefix(key))
	if item == nil {
		return nil
	}
	return append([]Token(nil), item.([]Token)...)
}

// LookupPredictive returns tokens whose key starts with prefix, cheapest
// first. limit keeps the limit cheapest tokens, 0 means no cap.
func (l *Loader) LookupPredictive(prefix string, limit int) []Token {
	if prefix == "" {
		return nil
	}
	var out []Token
	l.mu.RLock()
	_ = l.trie.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, item patricia.Item) error {
		out = append(out, item.([]Token)...)
		return nil
	})
	l.mu.RUnlock()
	sortByCost(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LookupPrefix returns tokens whose key is a prefix of key, longest key first.
func (l *Loader) LookupPrefix(key string) []Token {
	if key == "" {
		return nil
	}
	var out []Token
	l.mu.RLock()
	_ = l.trie.VisitPrefixes(patricia.Prefix(key), func(_ patricia.Prefix, item patricia.Item) error {
		out = append(out, item.([]Token)...)
		return nil
	})
	l.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Key) != len(out[j].Key) {
			return len(out[i].Key) > len(out[j].Key)
		}
		return out[i].Cost < out[j].Cost
	})
	return out
}

// LookupSingleKanji returns the one-kanji values read as key, cheapest first.
func (l *Loader) LookupSingleKanji(key string) []string {
	tokens := l.LookupExact(key)
	sortByCost(tokens)
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, t := range tokens {
		r, size := utf8.DecodeRuneInString(t.Value)
		if size != len(t.Value) || kana.RuneScript(r) != kana.Kanji || seen[t.Value] {
			continue
		}
		seen[t.Value] = true
		out = append(out, t.Value)
	}
	return out
}

// HasKey reports whether any token has exactly key.
func (l *Loader) HasKey(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.trie.Get(patricia.Prefix(key)) != nil
}

func sortByCost(tokens []Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].Cost < tokens[j].Cost
	})
}

// SuffixTokens returns the suffix words, cheapest first.
func (l *Loader) SuffixTokens() []Token {
	l.mu.RLock()
	out := append([]Token(nil), l.suffixes...)
	l.mu.RUnlock()
	sortByCost(out)
	return out
}
