package rerank

import (
	"math"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/pkg/conversion"
)

const (
	// costFactor converts a natural log probability into cost units.
	costFactor = 500

	badSuggestionPenalty     = 3453
	predictivePenalty        = 1956
	bigramPenalty            = 1347
	bigramBonus              = 800
	userDictionaryCostCap    = 1000
	realtimeTopMargin        = 10
	singleKanjiOffset        = 3000
	aggressiveMinCandidates  = 10
	aggressiveMinKeyLen      = 8
	aggressiveMinCost        = 5000
	aggressiveQueryKeyRatio  = 0.4
	maxSpellingCorrectionRun = 4
)

// GetLMCost is the unigram cost of result after a word with right id rid.
// Anything but a suffix word may also start a new phrase, so the cheaper of
// the two transitions is taken.
func (p *DictionaryPredictor) GetLMCost(result *conversion.Result, rid uint16) int {
	cost := p.conn.GetTransitionCost(rid, result.Lid)
	if result.Types&conversion.Suffix == 0 {
		cost = min(cost, p.conn.GetTransitionCost(0, result.Lid))
	}
	return cost + result.Wcost
}

// IsAggressiveSuggestion reports a long candidate offered for a short query
// when there are plenty of alternatives, e.g. "ただしいけめんにかぎる" for
// "ただしい".
func IsAggressiveSuggestion(queryLen, keyLen, cost int, isSuggestion bool, totalCandidates int) bool {
	return isSuggestion &&
		totalCandidates >= aggressiveMinCandidates &&
		keyLen >= aggressiveMinKeyLen &&
		cost >= aggressiveMinCost &&
		float64(queryLen) <= aggressiveQueryKeyRatio*float64(keyLen)
}

func historyRid(req *conversion.Request) uint16 {
	if last, ok := req.LastHistory(); ok {
		return last.Rid
	}
	return 0
}

// SetPredictionCost assigns desktop costs: the language model cost minus a
// bonus that grows with the part of the key still to be typed.
func (p *DictionaryPredictor) SetPredictionCost(req *conversion.Request, results []conversion.Result) {
	rid := historyRid(req)
	inputLen := kana.CharsLen(req.Key)
	historyLen := 0
	if last, ok := req.LastHistory(); ok {
		historyLen = kana.CharsLen(last.Key)
	}

	for i := range results {
		r := &results[i]
		queryLen, keyLen := inputLen, kana.CharsLen(r.Key)
		if r.Types&conversion.Bigram != 0 {
			queryLen += historyLen
			keyLen += historyLen
		}
		lm := p.GetLMCost(r, rid)
		if IsAggressiveSuggestion(queryLen, keyLen, lm, req.IsSuggestion(), len(results)) {
			r.Cost = conversion.InvalidCost
			continue
		}
		remain := max(0, keyLen-queryLen)
		r.Cost = lm - int(costFactor*math.Log(float64(1+remain)))
	}
	fixRealtimeTopCost(results)
}

// SetPredictionCostForMixedConversion assigns costs for the mobile layout
// where exact and predictive candidates share one list.
func (p *DictionaryPredictor) SetPredictionCostForMixedConversion(req *conversion.Request, results []conversion.Result) {
	rid := historyRid(req)
	inputLen := kana.CharsLen(req.Key)
	discount := p.Settings().UserDictionaryDiscount

	for i := range results {
		r := &results[i]
		cost := p.GetLMCost(r, rid)
		if p.filter != nil && p.filter.IsBadSuggestion(r.Value) {
			cost += badSuggestionPenalty
		}
		if r.Types&(conversion.Unigram|conversion.TypingCorrection) != 0 && kana.CharsLen(r.Key) > inputLen {
			cost += predictivePenalty
		}
		if r.Types&conversion.Bigram != 0 {
			cost += bigramPenalty - bigramBonus
		}
		if r.TokenAttributes&conversion.UserDictionaryToken != 0 && !p.pos.IsGeneralSymbol(r.Lid) {
			cost = min(cost-discount, userDictionaryCostCap)
		}
		r.Cost = max(1, cost)
	}
	fixRealtimeTopCost(results)
}

// fixRealtimeTopCost puts the REALTIME_TOP result just above the cheapest
// other realtime result, so the best full conversion leads.
func fixRealtimeTopCost(results []conversion.Result) {
	best := -1
	for i := range results {
		r := &results[i]
		if r.Types&conversion.Realtime == 0 || r.Types&conversion.RealtimeTop != 0 || r.Cost >= conversion.InvalidCost {
			continue
		}
		if best < 0 || r.Cost < best {
			best = r.Cost
		}
	}
	if best < 0 {
		return
	}
	for i := range results {
		if results[i].Types&conversion.RealtimeTop != 0 {
			results[i].Cost = max(0, best-realtimeTopMargin)
		}
	}
}

// SetSingleKanjiPredictionCost ranks SINGLE_KANJI results after the best
// other result. Their Wcost holds the rank from the decoder.
func (p *DictionaryPredictor) SetSingleKanjiPredictionCost(results []conversion.Result) {
	base := -1
	for i := range results {
		r := &results[i]
		if r.Types&conversion.SingleKanji != 0 || r.Removed || r.Cost >= conversion.InvalidCost {
			continue
		}
		if base < 0 || r.Cost < base {
			base = r.Cost
		}
	}
	if base < 0 {
		base = 0
	}
	for i := range results {
		r := &results[i]
		if r.Types&conversion.SingleKanji != 0 {
			r.Cost = base + singleKanjiOffset + r.Wcost
		}
	}
}
