package history

import (
	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/pkg/conversion"
)

// IsValidEntry reports whether e may be shown at all.
func (p *Predictor) IsValidEntry(e *Entry) bool {
	if e == nil || e.Removed {
		return false
	}
	return p.IsValidEntryIgnoringRemovedField(e)
}

// IsValidEntryIgnoringRemovedField is IsValidEntry for an entry about to be
// relearned or used as a link source, where the tombstone does not matter.
func (p *Predictor) IsValidEntryIgnoringRemovedField(e *Entry) bool {
	if e == nil {
		return false
	}
	if kana.IsObsoleteEmoji(e.Value) {
		return false
	}
	if p.userDict != nil && p.userDict.IsSuppressedEntry(e.Key, e.Value) {
		return false
	}
	return true
}

// IsValidSuggestion gates suggestion requests, which fire on every keystroke.
// An entry needs a longer typed prefix the less often it was picked.
func IsValidSuggestion(req *conversion.Request, prefixLen int, e *Entry) bool {
	if e.BigramBoost || req.ZeroQuerySuggestion {
		return true
	}
	freq := int(max(e.SuggestionFreq, e.ConversionFreq/4))
	return prefixLen >= 3-min(2, freq)
}

// IsValidSuggestionForMixedConversion drops long values that were rarely
// picked from the shared mobile list.
func IsValidSuggestionForMixedConversion(e *Entry) bool {
	return !(e.SuggestionFreq < 2 && kana.CharsLen(e.Value) > 8)
}
