/*
Package history learns what the user commits and predicts it back.

Every committed (key, value) pair becomes an Entry in a fixed capacity LRU
Store keyed by Fingerprint. Consecutive segments are linked through
Entry.NextEntries so that "私の" followed by "名前は" can later be offered as
"私の名前は". Predict walks the store most recently used first, scores the
matches and returns the best few. Finish learns a commit, Revert undoes one and
Sync writes the store to an encrypted Storage in the background.
*/
package history

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/bastiangx/kanaserve/internal/logger"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// ErrNoStorage is returned by Save and Load when no Storage was configured.
var ErrNoStorage = errors.New("history: no storage configured")

// ErrInvalidEntry marks snapshot entries dropped at load time.
var ErrInvalidEntry = errors.New("history: invalid entry")

const (
	DefaultEntryLifetimeDays       = 62
	DefaultMaxPredictionCandidates = 3
	DefaultMaxZeroQueryCandidates  = 4

	maxRevertRecords = 64
)

// Storage persists the encoded store.
type Storage interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// UserDictionary reports pairs the user asked never to suggest.
type UserDictionary interface {
	IsSuppressedEntry(key, value string) bool
}

// TypingCorrector proposes corrected readings for a mistyped key, best first.
type TypingCorrector interface {
	CorrectComposition(req *conversion.Request) []conversion.TypeCorrectedQuery
}

// Limits are the tunables that can change while the predictor runs.
type Limits struct {
	// CacheStoreSize caps the entries written at Sync. 0 means the store capacity.
	CacheStoreSize int
	// EntryLifetimeDays drops entries not accessed for that long at Sync. 0 means 62.
	EntryLifetimeDays int
	// MaxSuggestionTrial caps entries visited per lookup. 0 means no cap.
	MaxSuggestionTrial      int
	MaxPredictionCandidates int
	MaxZeroQueryCandidates  int
	// MaxCharCoverage caps the summed length of the results. 0 means no cap.
	MaxCharCoverage int
	// TypingCorrectionSize is how many corrected queries are looked up. 0 disables it.
	TypingCorrectionSize int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		EntryLifetimeDays:       DefaultEntryLifetimeDays,
		MaxPredictionCandidates: DefaultMaxPredictionCandidates,
		MaxZeroQueryCandidates:  DefaultMaxZeroQueryCandidates,
	}
}

func (l Limits) normalize(capacity int) Limits {
	if l.CacheStoreSize <= 0 || l.CacheStoreSize > capacity {
		l.CacheStoreSize = capacity
	}
	if l.EntryLifetimeDays <= 0 {
		l.EntryLifetimeDays = DefaultEntryLifetimeDays
	}
	if l.MaxSuggestionTrial < 0 {
		l.MaxSuggestionTrial = 0
	}
	if l.MaxPredictionCandidates <= 0 {
		l.MaxPredictionCandidates = DefaultMaxPredictionCandidates
	}
	if l.MaxZeroQueryCandidates <= 0 {
		l.MaxZeroQueryCandidates = DefaultMaxZeroQueryCandidates
	}
	if l.MaxCharCoverage < 0 {
		l.MaxCharCoverage = 0
	}
	if l.TypingCorrectionSize < 0 {
		l.TypingCorrectionSize = 0
	}
	return l
}

// Stats is a point in time view of the predictor counters.
type Stats struct {
	Entries      int
	Capacity     int
	Evicted      int
	Learned      int
	Reverted     int
	Syncs        int
	SyncFailures int
	Pruned       int
	Loaded       int
	Discarded    int
}

// LoadStats reports what a Load accepted and dropped.
type LoadStats struct {
	Loaded    int
	Discarded int
}

type config struct {
	capacity  int
	limits    Limits
	clock     Clock
	storage   Storage
	userDict  UserDictionary
	corrector TypingCorrector
	logger    *log.Logger
}

// Option configures New.
type Option func(*config)

func WithStorage(s Storage) Option {
	return func(c *config) { c.storage = s }
}

func WithClock(clock Clock) Option {
	return func(c *config) { c.clock = clock }
}

func WithUserDictionary(d UserDictionary) Option {
	return func(c *config) { c.userDict = d }
}

func WithTypingCorrector(t TypingCorrector) Option {
	return func(c *config) { c.corrector = t }
}

func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithCapacity sets the store size. Values below 1 keep DefaultStoreCapacity.
func WithCapacity(n int) Option {
	return func(c *config) { c.capacity = n }
}

func WithLimits(l Limits) Option {
	return func(c *config) { c.limits = l }
}

// Predictor is the user history predictor. Predict may run concurrently with
// itself. Finish, Revert and the Clear calls are serialized against each
// other and against the snapshot taken by Sync.
type Predictor struct {
	mu      sync.RWMutex
	store   *Store
	limits  Limits
	reverts *lru.LRU[string, *revertRecord]
	stats   Stats

	clock     Clock
	storage   Storage
	userDict  UserDictionary
	corrector TypingCorrector
	log       *log.Logger

	saveMu    sync.Mutex
	group     singleflight.Group
	// bgMu orders wg.Add in goBackground before wg.Wait in WaitForSyncer.
	bgMu      sync.RWMutex
	wg        sync.WaitGroup
	requested atomic.Uint64
	saved     atomic.Uint64
}

// New builds an empty predictor. Call Load or Reload to restore saved history.
func New(opts ...Option) *Predictor {
	cfg := config{limits: DefaultLimits(), clock: systemClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.New("history")
	}
	store := NewStore(cfg.capacity)
	reverts, err := lru.NewLRU[string, *revertRecord](maxRevertRecords, nil)
	if err != nil {
		panic(err)
	}
	return &Predictor{
		store:     store,
		limits:    cfg.limits.normalize(store.Capacity()),
		reverts:   reverts,
		clock:     cfg.clock,
		storage:   cfg.storage,
		userDict:  cfg.userDict,
		corrector: cfg.corrector,
		log:       cfg.logger,
	}
}

// SetLimits replaces the running limits.
func (p *Predictor) SetLimits(l Limits) {
	p.mu.Lock()
	p.limits = l.normalize(p.store.Capacity())
	p.mu.Unlock()
}

// Limits returns the limits in effect after defaults were applied.
func (p *Predictor) Limits() Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.limits
}

func (p *Predictor) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.stats
	s.Entries = p.store.Len()
	s.Capacity = p.store.Capacity()
	s.Evicted = p.store.Evicted()
	return s
}

// Entries returns copies of the stored entries, most recently used first.
func (p *Predictor) Entries() []*Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Entry, 0, p.store.Len())
	p.store.Each(func(_ uint32, e *Entry) bool {
		out = append(out, e.Clone())
		return true
	})
	return out
}

// Lookup returns a copy of the entry for (key, value), or nil.
func (p *Predictor) Lookup(key, value string) *Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e := p.store.Lookup(Fingerprint(key, value)); e != nil {
		return e.Clone()
	}
	return nil
}
