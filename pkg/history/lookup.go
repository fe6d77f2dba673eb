package history

import (
	"strings"
	"unicode/utf8"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/tchap/go-patricia/v2/patricia"
)

// lookupQuery is one typed key with its composer expansion.
type lookupQuery struct {
	input    string
	base     string
	expanded *patricia.Trie
	// romanKey is set when the key looks like a roman-input slip.
	romanKey string
	typing   bool
}

// Predict returns learned candidates for req, best first.
func (p *Predictor) Predict(req *conversion.Request) []conversion.Result {
	if req == nil || !req.CanSuggestHistory() {
		return nil
	}
	if kana.StartsWithPunctuation(req.Key) {
		return nil
	}
	if req.Key == "" && (!req.ZeroQuerySuggestion || len(req.History) == 0) {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store.Len() == 0 {
		return nil
	}

	queue := NewEntryPriorityQueue()
	prev := p.previousEntry(req)
	p.collect(req, p.newQuery(req, req.Key, req.Base(), req.KeyExpanded), prev, queue)

	if n := p.limits.TypingCorrectionSize; n > 0 && p.corrector != nil && req.Key != "" {
		queries := p.corrector.CorrectComposition(req)
		for i := 0; i < len(queries) && i < n; i++ {
			c := queries[i].Correction
			if c == "" || c == req.Key {
				continue
			}
			q := p.newQuery(req, c, c, nil)
			q.typing = true
			p.collect(req, q, prev, queue)
		}
	}

	entries := p.filterQueue(req, queue)
	entries = RemoveRedundantCandidates(entries)
	entries = limitCharCoverage(entries, p.limits.MaxCharCoverage)
	size := p.limits.MaxPredictionCandidates
	if req.Key == "" {
		size = p.limits.MaxZeroQueryCandidates
	}
	if len(entries) > size {
		entries = entries[:size]
	}

	results := make([]conversion.Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, toResult(e, req.Debug))
	}
	return results
}

func (p *Predictor) newQuery(req *conversion.Request, input, base string, expanded []string) lookupQuery {
	q := lookupQuery{input: input, base: base, expanded: newExpandedTrie(expanded)}
	if req.PreeditMethod == conversion.Roman && MaybeRomanMisspelledKey(input) {
		q.romanKey = GetRomanMisspelledKey(input)
	}
	return q
}

// GetRomanMisspelledKey spells key the way a roman-input user typed it.
func GetRomanMisspelledKey(key string) string {
	return kana.ToRoman(key)
}

// previousEntry finds the entry the last commit left behind: the last two
// history segments joined if that pair was learned, else the last segment or
// its content word.
func (p *Predictor) previousEntry(req *conversion.Request) *Entry {
	n := len(req.History)
	if n == 0 {
		return nil
	}
	find := func(key, value string) *Entry {
		if key == "" || value == "" {
			return nil
		}
		e := p.store.Lookup(Fingerprint(key, value))
		if e == nil || !p.IsValidEntryIgnoringRemovedField(e) {
			return nil
		}
		return e
	}
	last := req.History[n-1]
	if n >= 2 {
		before := req.History[n-2]
		if e := find(before.Key+last.Key, before.Value+last.Value); e != nil {
			return e
		}
	}
	if e := find(last.Key, last.Value); e != nil {
		return e
	}
	return find(last.ContentKey, last.ContentValue)
}

// collect runs LookupEntry over the store most recently used first, visiting
// at most MaxSuggestionTrial entries.
func (p *Predictor) collect(req *conversion.Request, q lookupQuery, prev *Entry, queue *EntryPriorityQueue) {
	trials := 0
	limit := p.limits.MaxSuggestionTrial
	p.store.Each(func(_ uint32, e *Entry) bool {
		if limit > 0 && trials >= limit {
			return false
		}
		trials++
		if !p.IsValidEntry(e) {
			return true
		}
		p.LookupEntry(req, q, e, prev, queue)
		return true
	})
}

// LookupEntry matches one stored entry against the query and queues what it
// yields: the entry itself, the entry extended along its chain to cover the
// whole input, or the entry joined with its successor.
func (p *Predictor) LookupEntry(req *conversion.Request, q lookupQuery, e, prev *Entry, queue *EntryPriorityQueue) bool {
	mt := GetMatchTypeFromInput(q.input, q.base, q.expanded, e.Key)
	spelling := false
	if mt == NoMatch && q.romanKey != "" && RomanFuzzyPrefixMatch(kana.ToRoman(e.Key), q.romanKey) {
		mt = LeftPrefixMatch
		spelling = true
	}
	if mt == NoMatch {
		return false
	}

	boost := prev != nil && prev.HasNext(EntryFingerprint(e))
	desktop := !req.IsMobile()

	result := queue.NewEntry()
	*result = *e.Clone()
	result.BigramBoost = boost
	result.SpellingCorrection = spelling
	result.TypingCorrection = q.typing

	switch mt {
	case LeftEmptyMatch:
		if !boost {
			return false
		}
		return queue.Push(result)

	case LeftPrefixMatch:
		queue.Push(result)
		if desktop {
			p.pushJoined(result, e, e.LastAccessTime, queue)
		}
		return true

	case RightPrefixMatch:
		last, anchor, ok := p.GetKeyValueForExactAndRightPrefixMatch(q, e, result)
		if !ok {
			return false
		}
		mt = GetMatchTypeFromInput(q.input, q.base, q.expanded, result.Key)
		if mt == LeftPrefixMatch {
			queue.Push(result)
			if desktop {
				p.pushJoined(result, last, anchor, queue)
			}
			return true
		}
		return p.pushExact(result, last, anchor, desktop, queue)
	}
	return p.pushExact(result, e, e.LastAccessTime, desktop, queue)
}

// GetKeyValueForExactAndRightPrefixMatch extends result, which starts as a
// copy of e, along e's chain until its key covers the input. It returns the
// last chained entry and the earliest access time on the path.
func (p *Predictor) GetKeyValueForExactAndRightPrefixMatch(q lookupQuery, e, result *Entry) (*Entry, int64, bool) {
	cur := e
	anchor := e.LastAccessTime
	key, value := e.Key, e.Value
	for GetMatchTypeFromInput(q.input, q.base, q.expanded, key) == RightPrefixMatch {
		candidate := key
		next := p.closestNext(cur, anchor, func(n *Entry) bool {
			mt := GetMatchTypeFromInput(q.input, q.base, q.expanded, candidate+n.Key)
			return mt != NoMatch && mt != LeftEmptyMatch
		})
		if next == nil {
			return nil, 0, false
		}
		key += next.Key
		value += next.Value
		anchor = min(anchor, next.LastAccessTime)
		cur = next
	}
	result.Key = key
	result.Value = value
	result.LastAccessTime = cur.LastAccessTime
	result.SuggestionFreq = cur.SuggestionFreq
	result.ConversionFreq = cur.ConversionFreq
	result.Description = ""
	result.NextEntries = nil
	return cur, anchor, true
}

// closestNext picks the successor of cur learned closest in time to anchor.
// Ties keep list order.
func (p *Predictor) closestNext(cur *Entry, anchor int64, accept func(*Entry) bool) *Entry {
	var best *Entry
	var bestDist int64
	for _, fp := range cur.NextEntries {
		n := p.store.Lookup(fp)
		if n == nil || !p.IsValidEntry(n) || !accept(n) {
			continue
		}
		d := n.LastAccessTime - anchor
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// pushExact queues a result whose key equals the input. On desktop its
// continuation, when there is one, is queued in its place.
func (p *Predictor) pushExact(result, last *Entry, anchor int64, desktop bool, queue *EntryPriorityQueue) bool {
	if desktop {
		next := p.closestNext(last, anchor, func(n *Entry) bool {
			return !kana.IsPunctuation(n.Value)
		})
		if next != nil {
			return queue.Push(joinEntry(queue, result, next))
		}
	}
	return queue.Push(result)
}

// pushJoined queues result extended by its content word successor.
func (p *Predictor) pushJoined(result, last *Entry, anchor int64, queue *EntryPriorityQueue) {
	if !kana.IsContentWord(result.Value) {
		return
	}
	next := p.closestNext(last, anchor, func(n *Entry) bool {
		return !kana.IsPunctuation(n.Value) && kana.IsContentWord(n.Value)
	})
	if next == nil {
		return
	}
	queue.Push(joinEntry(queue, result, next))
}

func joinEntry(queue *EntryPriorityQueue, head, next *Entry) *Entry {
	joined := queue.NewEntry()
	joined.Key = head.Key + next.Key
	joined.Value = head.Value + next.Value
	joined.LastAccessTime = next.LastAccessTime
	joined.SuggestionFreq = next.SuggestionFreq
	joined.ConversionFreq = next.ConversionFreq
	joined.BigramBoost = head.BigramBoost
	joined.SpellingCorrection = head.SpellingCorrection
	joined.TypingCorrection = head.TypingCorrection
	return joined
}

// filterQueue drains the queue applying the per-request eligibility rules.
func (p *Predictor) filterQueue(req *conversion.Request, queue *EntryPriorityQueue) []*Entry {
	prefixLen := kana.CharsLen(req.Key)
	mobile := req.IsMobile()
	var out []*Entry
	for e := queue.Pop(); e != nil; e = queue.Pop() {
		if req.IsSuggestion() && !IsValidSuggestion(req, prefixLen, e) {
			continue
		}
		if req.MixedConversion && !IsValidSuggestionForMixedConversion(e) {
			continue
		}
		if mobile && req.Key != "" && endsWithPunctuation(e.Value) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func endsWithPunctuation(value string) bool {
	r, size := utf8.DecodeLastRuneInString(value)
	if r == utf8.RuneError {
		return false
	}
	return kana.IsPunctuation(value[len(value)-size:])
}

// RemoveRedundantCandidates drops a candidate that only adds hiragana to an
// earlier one, and lets a shorter candidate take the place of a longer one
// that only adds hiragana to it.
func RemoveRedundantCandidates(entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
next:
	for _, e := range entries {
		for i, kept := range out {
			if rest, ok := strings.CutPrefix(e.Value, kept.Value); ok && rest != "" && kana.IsHiraganaOnly(rest) {
				continue next
			}
			if rest, ok := strings.CutPrefix(kept.Value, e.Value); ok && rest != "" && kana.IsHiraganaOnly(rest) {
				out[i] = e
				continue next
			}
		}
		out = append(out, e)
	}
	return out
}

// limitCharCoverage keeps results while their summed length fits coverage.
// The first result is always kept.
func limitCharCoverage(entries []*Entry, coverage int) []*Entry {
	if coverage <= 0 || len(entries) == 0 {
		return entries
	}
	total := kana.CharsLen(entries[0].Value)
	n := 1
	for ; n < len(entries); n++ {
		total += kana.CharsLen(entries[n].Value)
		if total > coverage {
			break
		}
	}
	return entries[:n]
}

func toResult(e *Entry, debug bool) conversion.Result {
	r := conversion.Result{
		Key:         e.Key,
		Value:       e.Value,
		Description: e.Description,
	}
	types := conversion.History
	if e.BigramBoost {
		types |= conversion.Bigram
	} else {
		types |= conversion.Unigram
	}
	if e.TypingCorrection {
		types |= conversion.TypingCorrection
	}
	var attrs conversion.TokenAttribute
	if e.SpellingCorrection {
		attrs |= conversion.SpellingCorrectionToken
	}
	r.SetTypesAndTokenAttributes(types, attrs)
	r.CandidateAttributes |= conversion.AttrUserHistoryPrediction
	if debug && r.Description == "" {
		r.Description = "History " + types.DebugString()
	}
	return r
}
