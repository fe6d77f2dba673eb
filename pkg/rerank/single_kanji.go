package rerank

import (
	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/dictionary"
)

const (
	// singleKanjiPrefixOffset separates the kanji of each shorter prefix.
	singleKanjiPrefixOffset = 3450
	singleKanjiMinResults   = 5
)

// SingleKanjiDictionary lists the one-kanji values read as a key, most
// common first.
type SingleKanjiDictionary interface {
	LookupSingleKanji(key string) []string
}

// SingleKanjiDecoder offers single kanji for the key and, with auto partial
// suggestion, for its shorter prefixes. Wcost holds the rank, which
// SetSingleKanjiPredictionCost turns into a cost.
type SingleKanjiDecoder struct {
	dict SingleKanjiDictionary
	pos  dictionary.PosMatcher
}

func NewSingleKanjiDecoder(dict SingleKanjiDictionary, pos dictionary.PosMatcher) *SingleKanjiDecoder {
	return &SingleKanjiDecoder{dict: dict, pos: pos}
}

func (d *SingleKanjiDecoder) Decode(req *conversion.Request) []conversion.Result {
	runes := []rune(req.Key)
	var results []conversion.Result
	offset := 0
	for n := len(runes); n > 0; n-- {
		if n < len(runes) && !req.AutoPartialSuggestion {
			break
		}
		key := string(runes[:n])
		values := d.dict.LookupSingleKanji(key)
		if len(values) == 0 {
			continue
		}
		for _, value := range values {
			r := conversion.Result{
				Key:   key,
				Value: value,
				Wcost: offset + len(results),
				Lid:   d.pos.GeneralSymbol,
				Rid:   d.pos.GeneralSymbol,
			}
			// A shorter key stays a SINGLE_KANJI result, not a PREFIX one.
			if n < len(runes) {
				r.ConsumedKeySize = kana.CharsLen(key)
			}
			r.SetTypesAndTokenAttributes(conversion.SingleKanji, 0)
			results = append(results, r)
		}
		offset += singleKanjiPrefixOffset
		if len(results) > singleKanjiMinResults {
			break
		}
	}
	return results
}
