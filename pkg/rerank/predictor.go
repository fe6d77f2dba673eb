/*
Package rerank turns the raw candidates of the dictionary aggregators into the
final ranked list.

Predict asks an Aggregator for candidates, assigns each one a language model
cost through a dictionary.Connector, drops misspellings and duplicates and cuts
the list to the configured budgets. The previous top candidate is remembered
across keystrokes so that a still consistent top does not flicker away.
*/
package rerank

import (
	"sync"

	"github.com/bastiangx/kanaserve/internal/logger"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/dictionary"
	"github.com/charmbracelet/log"
)

// Aggregator supplies the raw candidates for one request.
type Aggregator interface {
	AggregateResultsForDesktop(req *conversion.Request) []conversion.Result
	AggregateResultsForMixedConversion(req *conversion.Request) []conversion.Result
	AggregateTypingCorrectedResultsForMixedConversion(req *conversion.Request) []conversion.Result
}

// Rescorer may rewrite the costs after the language model pass.
type Rescorer interface {
	RescoreResults(req *conversion.Request, results []conversion.Result)
}

// SuggestionFilter reports values that must not be suggested unprompted.
type SuggestionFilter interface {
	IsBadSuggestion(value string) bool
}

// Settings are the tunables that can change while the predictor runs.
type Settings struct {
	// MaxCandidates caps the returned results. 0 means 100.
	MaxCandidates int
	// MaxCharCoverage caps the summed value length. 0 means no cap.
	MaxCharCoverage int
	// ConsistencyMaxCostDiff enables previous top reinsertion. 0 disables it.
	ConsistencyMaxCostDiff int
	// SuffixTransitionThreshold drops zero query suffix words that connect
	// worse than this to the history. 0 disables it.
	SuffixTransitionThreshold int
	// UserDictionaryDiscount lowers user dictionary words in mixed
	// conversion. 0 means 804.
	UserDictionaryDiscount     int
	MaxTypingCorrectionResults int
	UseTypingCorrection        bool
}

const (
	DefaultMaxCandidates              = 100
	DefaultUserDictionaryDiscount     = 804
	DefaultMaxTypingCorrectionResults = 3
)

func DefaultSettings() Settings {
	return Settings{
		MaxCandidates:              DefaultMaxCandidates,
		UserDictionaryDiscount:     DefaultUserDictionaryDiscount,
		MaxTypingCorrectionResults: DefaultMaxTypingCorrectionResults,
	}
}

func (s Settings) normalize() Settings {
	if s.MaxCandidates <= 0 {
		s.MaxCandidates = DefaultMaxCandidates
	}
	if s.MaxCharCoverage < 0 {
		s.MaxCharCoverage = 0
	}
	if s.ConsistencyMaxCostDiff < 0 {
		s.ConsistencyMaxCostDiff = 0
	}
	if s.SuffixTransitionThreshold < 0 {
		s.SuffixTransitionThreshold = 0
	}
	if s.UserDictionaryDiscount <= 0 {
		s.UserDictionaryDiscount = DefaultUserDictionaryDiscount
	}
	if s.MaxTypingCorrectionResults <= 0 {
		s.MaxTypingCorrectionResults = DefaultMaxTypingCorrectionResults
	}
	return s
}

type config struct {
	settings    Settings
	rescorer    Rescorer
	filter      SuggestionFilter
	singleKanji *SingleKanjiDecoder
	logger      *log.Logger
}

// Option configures New.
type Option func(*config)

func WithSettings(s Settings) Option {
	return func(c *config) { c.settings = s }
}

func WithRescorer(r Rescorer) Option {
	return func(c *config) { c.rescorer = r }
}

func WithSuggestionFilter(f SuggestionFilter) Option {
	return func(c *config) { c.filter = f }
}

// WithSingleKanjiDecoder adds single kanji candidates to mixed conversion.
func WithSingleKanjiDecoder(d *SingleKanjiDecoder) Option {
	return func(c *config) { c.singleKanji = d }
}

func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// DictionaryPredictor ranks dictionary candidates. Predict is safe for
// concurrent use; only the previous top state is shared between calls.
type DictionaryPredictor struct {
	conn       dictionary.Connector
	pos        dictionary.PosMatcher
	aggregator Aggregator

	rescorer    Rescorer
	filter      SuggestionFilter
	singleKanji *SingleKanjiDecoder
	log         *log.Logger

	mu       sync.RWMutex
	settings Settings

	topMu   sync.Mutex
	prevTop *conversion.Result
	prevKey string
}

func New(conn dictionary.Connector, pos dictionary.PosMatcher, aggregator Aggregator, opts ...Option) *DictionaryPredictor {
	cfg := config{settings: DefaultSettings()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.New("rerank")
	}
	return &DictionaryPredictor{
		conn:        conn,
		pos:         pos,
		aggregator:  aggregator,
		rescorer:    cfg.rescorer,
		filter:      cfg.filter,
		singleKanji: cfg.singleKanji,
		log:         cfg.logger,
		settings:    cfg.settings.normalize(),
	}
}

// SetSettings replaces the running settings.
func (p *DictionaryPredictor) SetSettings(s Settings) {
	p.mu.Lock()
	p.settings = s.normalize()
	p.mu.Unlock()
}

// Settings returns the settings in effect after defaults were applied.
func (p *DictionaryPredictor) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// Predict returns the ranked dictionary candidates for req. Conversion
// requests are answered by the converter, not here.
func (p *DictionaryPredictor) Predict(req *conversion.Request) []conversion.Result {
	if req.Type == conversion.Conversion {
		return nil
	}
	settings := p.Settings()

	var results []conversion.Result
	if req.MixedConversion {
		results = p.aggregator.AggregateResultsForMixedConversion(req)
		results = append(results, p.AggregateTypingCorrectedResultsForMixedConversion(req)...)
		if p.singleKanji != nil {
			results = append(results, p.singleKanji.Decode(req)...)
		}
	} else {
		results = p.aggregator.AggregateResultsForDesktop(req)
	}
	if len(results) == 0 {
		return nil
	}

	SetTypesAndTokenAttributes(results)
	if req.MixedConversion {
		p.SetPredictionCostForMixedConversion(req, results)
	} else {
		p.SetPredictionCost(req, results)
	}
	p.SetSingleKanjiPredictionCost(results)

	if p.rescorer != nil && !req.Handwriting {
		p.rescorer.RescoreResults(req, results)
	}
	RemoveMissSpelledCandidates(req, results)

	out := p.rerank(req, results, settings)
	p.log.Debugf("Predict %q: %d aggregated, %d ranked", req.Key, len(results), len(out))
	return out
}

// AggregateTypingCorrectedResultsForMixedConversion returns the typing
// corrected candidates, or nil when typing correction is off.
func (p *DictionaryPredictor) AggregateTypingCorrectedResultsForMixedConversion(req *conversion.Request) []conversion.Result {
	if !p.Settings().UseTypingCorrection {
		return nil
	}
	return p.aggregator.AggregateTypingCorrectedResultsForMixedConversion(req)
}

// SetTypesAndTokenAttributes derives the candidate attributes of every
// result from its types and token attributes.
func SetTypesAndTokenAttributes(results []conversion.Result) {
	for i := range results {
		results[i].SetTypesAndTokenAttributes(results[i].Types, results[i].TokenAttributes)
	}
}
