package predictor

import (
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/history"
)

const (
	historyBonusPerUse = 300
	maxHistoryBonus    = 1500
)

// EntryLookup finds a learned pair.
type EntryLookup interface {
	Lookup(key, value string) *history.Entry
}

// HistoryRescorer lowers the cost of dictionary candidates the user has
// committed before, more for pairs used often. It plugs into the dictionary
// reranker as a rerank.Rescorer.
type HistoryRescorer struct {
	history EntryLookup
}

func NewHistoryRescorer(h EntryLookup) *HistoryRescorer {
	return &HistoryRescorer{history: h}
}

func (r *HistoryRescorer) RescoreResults(req *conversion.Request, results []conversion.Result) {
	if !req.CanSuggestHistory() {
		return
	}
	for i := range results {
		res := &results[i]
		if res.Cost >= conversion.InvalidCost {
			continue
		}
		e := r.history.Lookup(res.Key, res.Value)
		if e == nil || e.Removed {
			continue
		}
		uses := int(e.SuggestionFreq + e.ConversionFreq)
		bonus := min(historyBonusPerUse*max(uses, 1), maxHistoryBonus)
		res.Cost = max(res.Cost-bonus, 1)
	}
}
