package dictionary

import (
	"sort"

	"github.com/bastiangx/kanaserve/pkg/conversion"
)

// kanaVariants groups kana that differ only by voicing marks or size, the
// slips a flick or kana keyboard produces most.
var kanaVariants = [][]rune{
	{'か', 'が'}, {'き', 'ぎ'}, {'く', 'ぐ'}, {'け', 'げ'}, {'こ', 'ご'},
	{'さ', 'ざ'}, {'し', 'じ'}, {'す', 'ず'}, {'せ', 'ぜ'}, {'そ', 'ぞ'},
	{'た', 'だ'}, {'ち', 'ぢ'}, {'つ', 'っ', 'づ'}, {'て', 'で'}, {'と', 'ど'},
	{'は', 'ば', 'ぱ'}, {'ひ', 'び', 'ぴ'}, {'ふ', 'ぶ', 'ぷ'}, {'へ', 'べ', 'ぺ'}, {'ほ', 'ぼ', 'ぽ'},
	{'あ', 'ぁ'}, {'い', 'ぃ'}, {'う', 'ぅ', 'ゔ'}, {'え', 'ぇ'}, {'お', 'ぉ'},
	{'や', 'ゃ'}, {'ゆ', 'ゅ'}, {'よ', 'ょ'}, {'わ', 'ゎ'},
}

var variantIndex = func() map[rune][]rune {
	m := make(map[rune][]rune)
	for _, group := range kanaVariants {
		for _, r := range group {
			m[r] = group
		}
	}
	return m
}()

const (
	// correctionBias is the log10 penalty of one substituted character.
	correctionBias = -0.5
	maxCorrections = 8
)

// KanaCorrector proposes readings that differ from the typed key in the
// voicing or size of one kana, keeping only readings the dictionary knows.
type KanaCorrector struct {
	dict *Loader
}

func NewKanaCorrector(dict *Loader) *KanaCorrector {
	return &KanaCorrector{dict: dict}
}

// CorrectComposition returns corrected queries, the later the substitution
// the higher the score.
func (c *KanaCorrector) CorrectComposition(req *conversion.Request) []conversion.TypeCorrectedQuery {
	runes := []rune(req.Key)
	if len(runes) < 2 {
		return nil
	}
	var out []conversion.TypeCorrectedQuery
	for i, r := range runes {
		for _, alt := range variantIndex[r] {
			if alt == r {
				continue
			}
			candidate := make([]rune, len(runes))
			copy(candidate, runes)
			candidate[i] = alt
			query := string(candidate)
			if len(c.dict.LookupPredictive(query, 1)) == 0 {
				continue
			}
			out = append(out, conversion.TypeCorrectedQuery{
				Correction: query,
				Score:      float32(i+1) / float32(len(runes)),
				Bias:       correctionBias,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > maxCorrections {
		out = out[:maxCorrections]
	}
	return out
}
