package rerank

import (
	"sort"
	"strings"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/pkg/conversion"
)

// RemoveMissSpelledCandidates marks spelling corrections and their
// competitors removed. When the misspelled reading itself is in the
// dictionary the correction is a guess at best; when only the corrected
// value exists under another reading the correction is redundant. A
// correction for a key longer than the input is held back until the input
// reaches the mismatch.
func RemoveMissSpelledCandidates(req *conversion.Request, results []conversion.Result) {
	inputLen := kana.CharsLen(req.Key)
	checked := 0
	for i := range results {
		r := &results[i]
		if r.TokenAttributes&conversion.SpellingCorrectionToken == 0 {
			continue
		}
		if checked++; checked > maxSpellingCorrectionRun {
			return
		}

		var sameKey, sameValue []int
		for j := range results {
			if i == j || results[j].TokenAttributes&conversion.SpellingCorrectionToken != 0 {
				continue
			}
			if results[j].Key == r.Key {
				sameKey = append(sameKey, j)
			}
			if results[j].Value == r.Value {
				sameValue = append(sameValue, j)
			}
		}

		switch {
		case len(sameKey) > 0 && len(sameValue) > 0:
			r.Removed = true
			for _, j := range sameKey {
				results[j].Removed = true
			}
		case len(sameValue) > 0:
			r.Removed = true
		case len(sameKey) > 0:
			for _, j := range sameKey {
				results[j].Removed = true
			}
			if inputLen < kana.CharsLen(r.Key) {
				r.Removed = true
			}
		}
	}
}

// Rerank sorts, filters and deduplicates results under the current settings.
// Costs must already be set.
func (p *DictionaryPredictor) Rerank(req *conversion.Request, results []conversion.Result) []conversion.Result {
	return p.rerank(req, results, p.Settings())
}

type resultKey struct {
	key, value string
}

func (p *DictionaryPredictor) rerank(req *conversion.Request, results []conversion.Result, settings Settings) []conversion.Result {
	sorted := make([]conversion.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return conversion.Less(&sorted[i], &sorted[j])
	})

	zeroQuery := req.Key == ""
	rid := historyRid(req)
	seen := make(map[resultKey]int, len(sorted))
	out := make([]conversion.Result, 0, min(len(sorted), settings.MaxCandidates))
	typingCorrections := 0
	coverage := 0

	for i := range sorted {
		r := sorted[i]
		if r.Removed || r.Value == "" || r.Cost >= conversion.InvalidCost {
			continue
		}
		id := resultKey{r.Key, r.Value}
		if at, ok := seen[id]; ok {
			kept := &out[at]
			kept.Types |= r.Types
			kept.TokenAttributes |= r.TokenAttributes
			kept.CandidateAttributes |= r.CandidateAttributes
			continue
		}
		if len(out) >= settings.MaxCandidates {
			continue
		}
		if r.Types&conversion.TypingCorrection != 0 {
			if typingCorrections >= settings.MaxTypingCorrectionResults {
				continue
			}
		}
		if r.Types&conversion.Prefix != 0 && hasInvalidRemainder(req.Key, &r) {
			continue
		}
		if p.filter != nil && p.filter.IsBadSuggestion(r.Value) && !(req.MixedConversion && r.Key == req.Key) {
			continue
		}
		if zeroQuery && r.Types&conversion.Suffix != 0 && settings.SuffixTransitionThreshold > 0 &&
			p.conn.GetTransitionCost(rid, r.Lid) > settings.SuffixTransitionThreshold {
			continue
		}
		chars := kana.CharsLen(r.Value)
		if settings.MaxCharCoverage > 0 && len(out) > 0 && coverage+chars > settings.MaxCharCoverage {
			break
		}
		coverage += chars

		if r.Types&conversion.TypingCorrection != 0 {
			typingCorrections++
		}
		if req.MixedConversion && r.Types&conversion.Prefix != 0 {
			r.CandidateAttributes |= conversion.AttrAutoPartialSuggestion
		}
		seen[id] = len(out)
		out = append(out, r)
	}

	if req.Debug {
		for i := range out {
			out[i].Description = out[i].Types.DebugString()
		}
	}
	if len(out) == 0 {
		return out
	}
	if prev := p.MaybeGetPreviousTopResult(out[0], req); prev != nil {
		out = insertPreviousTop(out, *prev, settings.MaxCandidates)
	}
	return out
}

// hasInvalidRemainder reports a PREFIX result that would leave the rest of
// the input starting with a prolonged sound mark or a small kana, which no
// word can begin with.
func hasInvalidRemainder(input string, r *conversion.Result) bool {
	consumed := r.ConsumedKeySize
	if consumed == 0 {
		consumed = kana.CharsLen(r.Key)
	}
	runes := []rune(input)
	if consumed >= len(runes) {
		return false
	}
	next := runes[consumed]
	return next == 'ー' || kana.IsSmallKana(next)
}

func insertPreviousTop(out []conversion.Result, prev conversion.Result, limit int) []conversion.Result {
	prev.Cost = out[0].Cost
	filtered := out[:1:1]
	for _, r := range out[1:] {
		if r.Key == prev.Key && r.Value == prev.Value {
			continue
		}
		filtered = append(filtered, r)
	}
	merged := make([]conversion.Result, 0, len(filtered)+1)
	merged = append(merged, filtered[0], prev)
	merged = append(merged, filtered[1:]...)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// MaybeGetPreviousTopResult returns the top result of the previous keystroke
// when it still fits the new input and costs at most
// ConsistencyMaxCostDiff more than the new top. The request key is always
// remembered for the next call, the new top only when it covers the whole key.
func (p *DictionaryPredictor) MaybeGetPreviousTopResult(top conversion.Result, req *conversion.Request) *conversion.Result {
	maxDiff := p.Settings().ConsistencyMaxCostDiff

	p.topMu.Lock()
	prev, prevKey := p.prevTop, p.prevKey
	if !consumesPartialKey(top) {
		current := top
		p.prevTop = &current
	}
	p.prevKey = req.Key
	p.topMu.Unlock()

	switch {
	case maxDiff <= 0 || prev == nil:
		return nil
	case consumesPartialKey(top):
		return nil
	case len(req.Key) <= len(prevKey) || !strings.HasPrefix(req.Key, prevKey):
		return nil
	case !strings.HasPrefix(prev.Key, req.Key):
		return nil
	case strings.HasPrefix(top.Value, prev.Value):
		return nil
	case prev.Cost-top.Cost > maxDiff:
		return nil
	}
	out := *prev
	return &out
}

func consumesPartialKey(r conversion.Result) bool {
	return r.Types&conversion.Prefix != 0 || r.CandidateAttributes&conversion.AttrPartiallyKeyConsumed != 0
}
