// Package engine wires the dictionary, the user dictionary, the history and
// the reranker into one predictor from a config.Config.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bastiangx/kanaserve/internal/logger"
	"github.com/bastiangx/kanaserve/internal/metrics"
	"github.com/bastiangx/kanaserve/internal/userdict"
	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/config"
	"github.com/bastiangx/kanaserve/pkg/dictionary"
	"github.com/bastiangx/kanaserve/pkg/history"
	"github.com/bastiangx/kanaserve/pkg/predictor"
	"github.com/bastiangx/kanaserve/pkg/rerank"
	"github.com/bastiangx/kanaserve/pkg/storage"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Paths are the resolved file locations the engine reads and writes.
type Paths struct {
	DataDir        string
	HistoryFile    string
	UserDictionary string
}

// ResolvePaths turns the relative names of cfg into absolute locations.
// Dictionary data is searched like the server binary does, history lives in
// the state directory and the user dictionary next to the config.
func ResolvePaths(cfg *config.Config, pr *utils.PathResolver) Paths {
	userDict := cfg.Dict.UserDictionary
	if userDict != "" && !filepath.IsAbs(userDict) {
		userDict = filepath.Join(pr.ConfigDir(), userDict)
	}
	return Paths{
		DataDir:        pr.GetDataDir(cfg.Dict.DataDir),
		HistoryFile:    pr.GetStatePath(cfg.History.StorageFile),
		UserDictionary: userDict,
	}
}

type options struct {
	storage  history.Storage
	clock    history.Clock
	registry *prometheus.Registry
	logger   *log.Logger
}

type Option func(*options)

// WithStorage replaces the encrypted history file, e.g. with
// storage.NewMemory for runs that must not persist anything.
func WithStorage(s history.Storage) Option {
	return func(o *options) { o.storage = s }
}

func WithClock(c history.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRegistry registers the metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Engine owns every long-lived component of a running service.
type Engine struct {
	Dictionary *dictionary.Loader
	UserDict   *userdict.Dictionary
	History    *history.Predictor
	Reranker   *rerank.DictionaryPredictor
	Predictor  *predictor.Predictor
	Metrics    *metrics.Recorder

	paths Paths
	log   *log.Logger

	mu  sync.RWMutex
	cfg *config.Config
}

// New builds the engine and restores the saved history. Missing dictionary
// data is not fatal: the engine then predicts from history only.
func New(cfg *config.Config, paths Paths, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: nil config")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.New("engine")
	}

	rec, err := metrics.New(o.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	ud, err := userdict.Load(paths.UserDictionary)
	if err != nil {
		o.logger.Warnf("User dictionary %s not loaded: %v", paths.UserDictionary, err)
		ud = &userdict.Dictionary{}
	}

	e := &Engine{
		UserDict: ud,
		Metrics:  rec,
		paths:    paths,
		log:      o.logger,
		cfg:      cfg,
	}

	pos := loadPosMatcher(dataFile(paths.DataDir, cfg.Dict.PosFile), o.logger)
	e.Dictionary = dictionary.NewLoader(paths.DataDir, cfg.Dict.MaxWords, logger.New("dict"))
	loaded, err := loadChunks(e.Dictionary, cfg.Dict.MaxWords)
	if err != nil {
		o.logger.Warnf("Dictionary not loaded from %s: %v", paths.DataDir, err)
	}
	if words := ud.Tokens(pos); len(words) > 0 {
		e.Dictionary.Add(words...)
		o.logger.Debugf("Added %d user dictionary words", len(words))
	}
	corrector := dictionary.NewKanaCorrector(e.Dictionary)

	store := o.storage
	if store == nil {
		passphrase := ""
		if cfg.History.PassphraseEnv != "" {
			passphrase = os.Getenv(cfg.History.PassphraseEnv)
		}
		if passphrase == "" {
			o.logger.Warnf("No passphrase in $%s, history is sealed with an empty key", cfg.History.PassphraseEnv)
		}
		store = storage.NewEncryptedFile(paths.HistoryFile, passphrase)
	}
	histOpts := []history.Option{
		history.WithStorage(store),
		history.WithCapacity(cfg.History.StoreCapacity),
		history.WithLimits(cfg.HistoryLimits()),
		history.WithUserDictionary(ud),
		history.WithTypingCorrector(corrector),
	}
	if o.clock != nil {
		histOpts = append(histOpts, history.WithClock(o.clock))
	}
	e.History = history.New(histOpts...)
	// A history that exists but cannot be opened must not be overwritten
	// by the next save.
	stats, err := e.History.Load()
	if err != nil {
		e.Dictionary.Stop()
		return nil, fmt.Errorf("restore history: %w", err)
	}
	o.logger.Debugf("Restored %d history entries (%d discarded)", stats.Loaded, stats.Discarded)
	rec.SetEntries(e.History.Stats().Entries)

	var dict predictor.DictionarySource
	if loaded > 0 || len(ud.Words()) > 0 {
		conn := loadConnector(dataFile(paths.DataDir, cfg.Dict.MatrixFile), o.logger)
		decoder := dictionary.NewDecoder(e.Dictionary, conn, pos)
		agg := dictionary.NewAggregator(e.Dictionary, decoder, corrector, dictionary.DefaultAggregatorOptions())
		e.Reranker = rerank.New(conn, pos, agg,
			rerank.WithSettings(cfg.RerankSettings()),
			rerank.WithRescorer(predictor.NewHistoryRescorer(e.History)),
			rerank.WithSuggestionFilter(ud),
			rerank.WithSingleKanjiDecoder(rerank.NewSingleKanjiDecoder(e.Dictionary, pos)),
			rerank.WithLogger(logger.New("rerank")),
		)
		dict = e.Reranker
	}

	predOpts := []predictor.Option{
		predictor.WithSizes(cfg.Prediction.SuggestionSize, cfg.Prediction.MaxCandidates),
		predictor.WithMetrics(rec),
	}
	if cfg.Server.Mode == "mixed" {
		e.Predictor = predictor.NewMixedConversion(e.History, dict, predOpts...)
	} else {
		e.Predictor = predictor.NewDesktop(e.History, dict, predOpts...)
	}
	o.logger.Infof("Engine ready: mode=%s dictionary_chunks=%d history_entries=%d",
		e.Predictor.Mode(), loaded, e.History.Stats().Entries)
	return e, nil
}

// Config returns the config currently in effect.
func (e *Engine) Config() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Paths returns the locations the engine was built with.
func (e *Engine) Paths() Paths {
	return e.paths
}

// ApplyConfig pushes the tunables of cfg into the running components and
// rereads the user dictionary. The mode, the sizes and the dictionary data
// only change on restart.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	e.History.SetLimits(cfg.HistoryLimits())
	if e.Reranker != nil {
		e.Reranker.SetSettings(cfg.RerankSettings())
	}
	if e.paths.UserDictionary != "" {
		if err := e.UserDict.Reload(e.paths.UserDictionary); err != nil {
			e.log.Warnf("User dictionary reload failed: %v", err)
		}
	}
	e.mu.Lock()
	old := e.cfg
	e.cfg = cfg
	e.mu.Unlock()
	if old != nil && old.Server.Mode != cfg.Server.Mode {
		e.log.Warnf("server.mode changed to %s, restart to apply", cfg.Server.Mode)
	}
}

// Close flushes the history and stops the dictionary loader.
func (e *Engine) Close() error {
	e.History.Wait()
	err := e.History.Save()
	if errors.Is(err, history.ErrNoStorage) {
		err = nil
	}
	e.Dictionary.Stop()
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// loadChunks loads chunks in id order until maxWords tokens are held.
// maxWords 0 loads everything.
func loadChunks(l *dictionary.Loader, maxWords int) (int, error) {
	chunks, err := l.GetAvailable()
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, errors.New("no dictionary chunks")
	}
	target, total := 0, 0
	for _, c := range chunks {
		if maxWords > 0 && total >= maxWords {
			break
		}
		total += c.TokenCount
		target++
	}
	if err := dictionary.NewRuntimeLoader(l).SetDictionarySize(target); err != nil {
		return len(l.GetLoadedIDs()), err
	}
	return target, nil
}

func dataFile(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func loadConnector(path string, l *log.Logger) dictionary.Connector {
	if path != "" && utils.FileExists(path) {
		m, err := dictionary.LoadMatrix(path)
		if err == nil {
			return m
		}
		l.Warnf("Connection matrix %s not loaded: %v", path, err)
	}
	l.Debugf("Using constant transition cost %d", dictionary.DefaultTransitionCost)
	return dictionary.ConstantConnector(dictionary.DefaultTransitionCost)
}

func loadPosMatcher(path string, l *log.Logger) dictionary.PosMatcher {
	if path != "" && utils.FileExists(path) {
		p, err := dictionary.LoadPosMatcher(path)
		if err == nil {
			return p
		}
		l.Warnf("POS ids %s not loaded: %v", path, err)
	}
	return dictionary.DefaultPosMatcher()
}
