package conversion

import (
	"strings"
)

// ResultType is a bitmask naming the sources that produced a Result.
type ResultType uint32

const (
	Unigram ResultType = 1 << iota
	Bigram
	Realtime
	Suffix
	English
	TypingCorrection
	Prefix
	Number
	SingleKanji
	RealtimeTop
	TypingCompletion
	SupplementalModel
	KeyExpandedInDictionary
	History

	NoPrediction ResultType = 0
)

// TokenAttribute is the dictionary token bitmask carried by a Result.
type TokenAttribute uint8

const (
	SpellingCorrectionToken TokenAttribute = 1 << iota
	UserDictionaryToken
	SuffixDictionaryToken
)

// CandidateAttribute is the bitmask the UI layer reads off a candidate.
type CandidateAttribute uint32

const (
	AttrTypingCorrection CandidateAttribute = 1 << iota
	AttrRealtimeConversion
	AttrNoVariantsExpansion
	AttrPartiallyKeyConsumed
	AttrSpellingCorrection
	AttrUserDictionary
	AttrNoModification
	AttrAutoPartialSuggestion
	AttrUserHistoryPrediction
	AttrNoSuggestLearning
)

// InvalidCost marks a result the reranker must not emit.
const InvalidCost = 1 << 21

// Result is one candidate flowing through a single prediction call.
type Result struct {
	Key   string
	Value string

	// Wcost is the word cost from the language model, Cost the final ranking cost.
	Wcost int
	Cost  int
	Lid   uint16
	Rid   uint16

	Types               ResultType
	TokenAttributes     TokenAttribute
	CandidateAttributes CandidateAttribute

	InnerSegmentBoundary []uint32
	Removed              bool

	// ConsumedKeySize is the number of key characters a partial result
	// covers. Zero means the whole key.
	ConsumedKeySize int

	TypingCorrectionScore      float32
	TypingCorrectionAdjustment int
	Description                string
}

// SetTypesAndTokenAttributes replaces the type bits and derives the candidate
// attributes from them. REALTIME_TOP implies the REALTIME rules. A PREFIX
// result or one with a ConsumedKeySize is partially key consumed.
func (r *Result) SetTypesAndTokenAttributes(types ResultType, tokenAttr TokenAttribute) {
	r.Types = types
	r.TokenAttributes = tokenAttr
	r.CandidateAttributes = 0
	if types&TypingCorrection != 0 {
		r.CandidateAttributes |= AttrTypingCorrection
	}
	if types&(Realtime|RealtimeTop) != 0 {
		r.CandidateAttributes |= AttrRealtimeConversion
	}
	if types&RealtimeTop != 0 {
		r.CandidateAttributes |= AttrNoVariantsExpansion
	}
	if types&Prefix != 0 || r.ConsumedKeySize > 0 {
		r.CandidateAttributes |= AttrPartiallyKeyConsumed
	}
	if tokenAttr&SpellingCorrectionToken != 0 {
		r.CandidateAttributes |= AttrSpellingCorrection
	}
	if tokenAttr&UserDictionaryToken != 0 {
		r.CandidateAttributes |= AttrUserDictionary | AttrNoModification | AttrNoVariantsExpansion
	}
}

// TypeCorrectedQuery is one corrected reading proposed by a typing corrector.
type TypeCorrectedQuery struct {
	Correction string
	Completion bool
	Score      float32
	// Bias is hypothesis score minus base score in log10, larger is better.
	Bias float32
}

// typingCorrectionScale converts a log10 bias into cost units (500 * ln 10).
const typingCorrectionScale = 1150

// PopulateTypeCorrectedQuery marks r as produced from q and folds the bias into Wcost.
func PopulateTypeCorrectedQuery(q TypeCorrectedQuery, r *Result) {
	if q.Completion {
		r.Types |= TypingCompletion
	} else {
		r.Types |= TypingCorrection
	}
	r.TypingCorrectionScore = q.Score
	adjustment := int(-typingCorrectionScale * q.Bias)
	r.TypingCorrectionAdjustment = adjustment
	r.Wcost += adjustment
}

// DebugString renders the type bits as the short letters shown in debug builds.
func (t ResultType) DebugString() string {
	var b strings.Builder
	if t&Unigram != 0 {
		b.WriteByte('U')
	}
	if t&Bigram != 0 {
		b.WriteByte('B')
	}
	if t&RealtimeTop != 0 {
		b.WriteString("R1")
	} else if t&Realtime != 0 {
		b.WriteByte('R')
	}
	if t&Suffix != 0 {
		b.WriteByte('S')
	}
	if t&English != 0 {
		b.WriteByte('E')
	}
	if t&TypingCorrection != 0 {
		b.WriteByte('T')
	}
	if t&TypingCompletion != 0 {
		b.WriteByte('C')
	}
	if t&SupplementalModel != 0 {
		b.WriteByte('X')
	}
	if t&KeyExpandedInDictionary != 0 {
		b.WriteByte('K')
	}
	return b.String()
}

// ValueLess orders values by character count, then by code point.
func ValueLess(lhs, rhs string) bool {
	l, r := []rune(lhs), []rune(rhs)
	if len(l) != len(r) {
		return len(l) < len(r)
	}
	for i := range l {
		if l[i] != r[i] {
			return l[i] < r[i]
		}
	}
	return false
}

// Less is the final ordering of the reranker: cost ascending, ties by ValueLess.
func Less(lhs, rhs *Result) bool {
	if lhs.Cost != rhs.Cost {
		return lhs.Cost < rhs.Cost
	}
	return ValueLess(lhs.Value, rhs.Value)
}

// MakeLearningResults folds committed segments into the single Result that
// learning consumes. Each segment becomes one inner boundary. Segments too
// long to encode are learned as one unit.
func MakeLearningResults(segments []Segment) []Result {
	if len(segments) == 0 {
		return nil
	}
	var key, value strings.Builder
	boundary := make([]uint32, 0, len(segments))
	for _, seg := range segments {
		ck, cv := seg.ContentKey, seg.ContentValue
		if ck == "" || !strings.HasPrefix(seg.Key, ck) {
			ck = seg.Key
		}
		if cv == "" || !strings.HasPrefix(seg.Value, cv) {
			cv = seg.Value
		}
		encoded, ok := EncodeLengths(len(seg.Key), len(seg.Value), len(ck), len(cv))
		if ok && boundary != nil {
			boundary = append(boundary, encoded)
		} else {
			boundary = nil
		}
		key.WriteString(seg.Key)
		value.WriteString(seg.Value)
	}
	result := Result{Key: key.String(), Value: value.String(), InnerSegmentBoundary: boundary}
	if len(segments) == 1 {
		result.Description = segments[0].Description
	}
	return []Result{result}
}
