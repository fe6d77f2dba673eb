/*
Package predictor combines the user history and the dictionary into the one
candidate list an input session shows.

The desktop layout fills a short suggestion window from history first and
tops it up from the dictionary. The mixed conversion layout (mobile) shows
history on top of a long, reranked dictionary list. Both sources run
concurrently for each request. Learning and maintenance calls only concern
the history.
*/
package predictor

import (
	"context"
	"errors"
	"time"

	"github.com/bastiangx/kanaserve/internal/logger"
	"github.com/bastiangx/kanaserve/internal/metrics"
	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/history"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSuggestionSize = 3
	DefaultPredictionSize = 100
)

var errReload = errors.New("predictor: history reload failed")

// HistorySource is the learning side of the predictor.
type HistorySource interface {
	Predict(req *conversion.Request) []conversion.Result
	Finish(req *conversion.Request, results []conversion.Result, revertID string)
	Revert(revertID string)
	ClearAllHistory() bool
	ClearUnusedHistory() bool
	ClearHistoryEntry(key, value string) bool
	Sync() bool
	Reload() bool
	Wait()
	Stats() history.Stats
}

// DictionarySource ranks dictionary candidates.
type DictionarySource interface {
	Predict(req *conversion.Request) []conversion.Result
}

// Mode selects the layout of the merged list.
type Mode int

const (
	Desktop Mode = iota
	MixedConversion
)

func (m Mode) String() string {
	if m == MixedConversion {
		return "mixed"
	}
	return "desktop"
}

type config struct {
	suggestionSize int
	predictionSize int
	metrics        *metrics.Recorder
	logger         *log.Logger
}

type Option func(*config)

// WithSizes sets the desktop suggestion window and the prediction list
// length. Values below 1 keep the defaults.
func WithSizes(suggestion, prediction int) Option {
	return func(c *config) {
		if suggestion > 0 {
			c.suggestionSize = suggestion
		}
		if prediction > 0 {
			c.predictionSize = prediction
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(c *config) { c.metrics = r }
}

func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Predictor is safe for concurrent use.
type Predictor struct {
	mode       Mode
	history    HistorySource
	dictionary DictionarySource

	suggestionSize int
	predictionSize int
	metrics        *metrics.Recorder
	log            *log.Logger
}

// NewDesktop builds the predictor for the desktop suggestion window.
func NewDesktop(h HistorySource, d DictionarySource, opts ...Option) *Predictor {
	return newPredictor(Desktop, h, d, opts)
}

// NewMixedConversion builds the predictor for the mobile layout where
// prediction and conversion share one list.
func NewMixedConversion(h HistorySource, d DictionarySource, opts ...Option) *Predictor {
	return newPredictor(MixedConversion, h, d, opts)
}

func newPredictor(mode Mode, h HistorySource, d DictionarySource, opts []Option) *Predictor {
	cfg := config{suggestionSize: DefaultSuggestionSize, predictionSize: DefaultPredictionSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.New("predictor")
	}
	return &Predictor{
		mode:           mode,
		history:        h,
		dictionary:     d,
		suggestionSize: cfg.suggestionSize,
		predictionSize: cfg.predictionSize,
		metrics:        cfg.metrics,
		log:            cfg.logger,
	}
}

func (p *Predictor) Mode() Mode {
	return p.mode
}

// Predict returns the merged candidates for req. The request layout flag is
// forced to the predictor mode. The only error is ctx ending first.
func (p *Predictor) Predict(ctx context.Context, req *conversion.Request) (results []conversion.Result, err error) {
	start := time.Now()
	defer func() { p.metrics.Observe(metrics.OpPredict, start, err) }()

	if req == nil {
		return nil, nil
	}
	r := *req
	r.MixedConversion = p.mode == MixedConversion

	var fromHistory, fromDictionary []conversion.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		fromHistory = p.history.Predict(&r)
		return nil
	})
	if p.dictionary != nil {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fromDictionary = p.dictionary.Predict(&r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.metrics.Candidates("history", len(fromHistory))
	p.metrics.Candidates("dictionary", len(fromDictionary))

	size := p.predictionSize
	if p.mode == Desktop && r.Type == conversion.Suggestion {
		size = p.suggestionSize
	}
	results = merge(size, fromHistory, fromDictionary)
	p.log.Debugf("Predict %s %q: history=%d dictionary=%d merged=%d",
		p.mode, r.Key, len(fromHistory), len(fromDictionary), len(results))
	return results, nil
}

// merge concatenates the lists in priority order, keeps the first result of
// each value and stops at size.
func merge(size int, lists ...[]conversion.Result) []conversion.Result {
	seen := utils.NewSeenSet("")
	var out []conversion.Result
	for _, list := range lists {
		for _, r := range list {
			if len(out) >= size {
				return out
			}
			if !seen.Add(r.Value) {
				continue
			}
			out = append(out, r)
		}
	}
	return out
}

// Finish learns the committed candidate.
func (p *Predictor) Finish(req *conversion.Request, results []conversion.Result, revertID string) {
	start := time.Now()
	p.history.Finish(req, results, revertID)
	p.metrics.Observe(metrics.OpFinish, start, nil)
}

func (p *Predictor) Revert(revertID string) {
	start := time.Now()
	p.history.Revert(revertID)
	p.metrics.Observe(metrics.OpRevert, start, nil)
}

func (p *Predictor) ClearAllHistory() bool {
	return p.history.ClearAllHistory()
}

func (p *Predictor) ClearUnusedHistory() bool {
	return p.history.ClearUnusedHistory()
}

func (p *Predictor) ClearHistoryEntry(key, value string) bool {
	return p.history.ClearHistoryEntry(key, value)
}

// Sync schedules a background save of the history.
func (p *Predictor) Sync() bool {
	start := time.Now()
	ok := p.history.Sync()
	p.metrics.Observe(metrics.OpSync, start, nil)
	p.metrics.SetEntries(p.history.Stats().Entries)
	return ok
}

// Reload replaces the in-memory history with the saved one.
func (p *Predictor) Reload() bool {
	start := time.Now()
	ok := p.history.Reload()
	var err error
	if !ok {
		err = errReload
	}
	p.metrics.Observe(metrics.OpReload, start, err)
	p.metrics.SetEntries(p.history.Stats().Entries)
	return ok
}

// Wait blocks until pending syncs finish.
func (p *Predictor) Wait() {
	p.history.Wait()
}

func (p *Predictor) Stats() history.Stats {
	return p.history.Stats()
}
