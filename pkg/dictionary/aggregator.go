package dictionary

import (
	"strings"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/pkg/conversion"
)

// RealtimeDecoder converts the whole key at once.
type RealtimeDecoder interface {
	Decode(req *conversion.Request) []conversion.Result
}

// TypingCorrector proposes corrected readings for a mistyped key, best first.
type TypingCorrector interface {
	CorrectComposition(req *conversion.Request) []conversion.TypeCorrectedQuery
}

// AggregatorOptions bound how much each source contributes.
type AggregatorOptions struct {
	// UnigramLimit caps predictive tokens per lookup.
	UnigramLimit int
	// TypingCorrectionQueries is how many corrected readings are looked up.
	TypingCorrectionQueries int
}

func DefaultAggregatorOptions() AggregatorOptions {
	return AggregatorOptions{UnigramLimit: 256, TypingCorrectionQueries: 3}
}

// Aggregator collects raw candidates from the dictionary for one request.
// Costs are left at the token costs; the reranker turns them into ranking
// costs.
type Aggregator struct {
	dict      *Loader
	decoder   RealtimeDecoder
	corrector TypingCorrector
	opts      AggregatorOptions
}

// NewAggregator builds an aggregator. decoder and corrector may be nil.
func NewAggregator(dict *Loader, decoder RealtimeDecoder, corrector TypingCorrector, opts AggregatorOptions) *Aggregator {
	def := DefaultAggregatorOptions()
	if opts.UnigramLimit <= 0 {
		opts.UnigramLimit = def.UnigramLimit
	}
	if opts.TypingCorrectionQueries <= 0 {
		opts.TypingCorrectionQueries = def.TypingCorrectionQueries
	}
	return &Aggregator{dict: dict, decoder: decoder, corrector: corrector, opts: opts}
}

// AggregateResultsForDesktop gathers unigram, bigram and realtime results.
// Desktop has no zero query suggestion.
func (a *Aggregator) AggregateResultsForDesktop(req *conversion.Request) []conversion.Result {
	if req.Key == "" {
		return nil
	}
	var results []conversion.Result
	results = a.appendRealtime(req, results)
	results = a.appendUnigram(req, results)
	results = a.appendBigram(req, results)
	return results
}

// AggregateResultsForMixedConversion adds prefix and suffix results to the
// desktop sources and answers zero queries from the history and the suffix
// dictionary.
func (a *Aggregator) AggregateResultsForMixedConversion(req *conversion.Request) []conversion.Result {
	var results []conversion.Result
	if req.Key == "" {
		results = a.appendBigram(req, results)
		for _, t := range a.dict.SuffixTokens() {
			results = append(results, t.Result(conversion.Suffix))
		}
		return results
	}
	results = a.appendRealtime(req, results)
	results = a.appendUnigram(req, results)
	results = a.appendBigram(req, results)
	if req.AutoPartialSuggestion {
		results = a.appendPrefix(req, results)
	}
	return results
}

// AggregateTypingCorrectedResultsForMixedConversion looks up the corrected
// readings and flags the results TYPING_CORRECTION.
func (a *Aggregator) AggregateTypingCorrectedResultsForMixedConversion(req *conversion.Request) []conversion.Result {
	if a.corrector == nil || req.Key == "" {
		return nil
	}
	queries := a.corrector.CorrectComposition(req)
	if len(queries) > a.opts.TypingCorrectionQueries {
		queries = queries[:a.opts.TypingCorrectionQueries]
	}
	var results []conversion.Result
	for _, q := range queries {
		for _, t := range a.dict.LookupPredictive(q.Correction, a.opts.UnigramLimit) {
			r := t.Result(conversion.Unigram)
			conversion.PopulateTypeCorrectedQuery(q, &r)
			r.SetTypesAndTokenAttributes(r.Types, t.Attributes)
			results = append(results, r)
		}
	}
	return results
}

func (a *Aggregator) appendRealtime(req *conversion.Request, results []conversion.Result) []conversion.Result {
	if a.decoder == nil {
		return results
	}
	return append(results, a.decoder.Decode(req)...)
}

func (a *Aggregator) appendUnigram(req *conversion.Request, results []conversion.Result) []conversion.Result {
	for _, t := range a.dict.LookupPredictive(req.Key, a.opts.UnigramLimit) {
		results = append(results, t.Result(unigramType(t)))
	}
	// a roman tail such as "あｋ" expands to "あか", "あき", ...
	if len(req.KeyExpanded) > 0 {
		base := req.Base()
		for _, exp := range req.KeyExpanded {
			for _, t := range a.dict.LookupPredictive(base+exp, a.opts.UnigramLimit) {
				results = append(results, t.Result(unigramType(t)|conversion.KeyExpandedInDictionary))
			}
		}
	}
	return results
}

func unigramType(t Token) conversion.ResultType {
	if t.Attributes&conversion.SuffixDictionaryToken != 0 {
		return conversion.Suffix
	}
	return conversion.Unigram
}

// appendBigram finds tokens that spell the last committed segment followed by
// the current key and returns only the continuation.
func (a *Aggregator) appendBigram(req *conversion.Request, results []conversion.Result) []conversion.Result {
	last, ok := req.LastHistory()
	if !ok || last.Key == "" || last.Value == "" {
		return results
	}
	for _, t := range a.dict.LookupPredictive(last.Key+req.Key, a.opts.UnigramLimit) {
		if !strings.HasPrefix(t.Value, last.Value) || len(t.Value) == len(last.Value) {
			continue
		}
		r := t.Result(conversion.Bigram)
		r.Key = strings.TrimPrefix(t.Key, last.Key)
		r.Value = strings.TrimPrefix(t.Value, last.Value)
		results = append(results, r)
	}
	return results
}

// appendPrefix offers words that cover only the head of the key.
func (a *Aggregator) appendPrefix(req *conversion.Request, results []conversion.Result) []conversion.Result {
	for _, t := range a.dict.LookupPrefix(req.Key) {
		if t.Key == req.Key {
			continue
		}
		r := t.Result(conversion.Prefix)
		r.ConsumedKeySize = kana.CharsLen(t.Key)
		results = append(results, r)
	}
	return results
}
