package history

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/bastiangx/kanaserve/pkg/storage"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

type snapshot struct {
	Version int      `msgpack:"version"`
	Entries []*Entry `msgpack:"entries"`
}

func encodeSnapshot(entries []*Entry) ([]byte, error) {
	return msgpack.Marshal(&snapshot{Version: snapshotVersion, Entries: entries})
}

func decodeSnapshot(data []byte) ([]*Entry, error) {
	var s snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return s.Entries, nil
}

func validateEntry(e *Entry) error {
	if e == nil || e.Key == "" || e.Value == "" {
		return ErrInvalidEntry
	}
	if !utf8.ValidString(e.Key) || !utf8.ValidString(e.Value) {
		return fmt.Errorf("%w: malformed utf-8", ErrInvalidEntry)
	}
	return nil
}

// Sync schedules a background Save. Concurrent calls share one save unless
// they changed the store after it started. It reports whether a save was
// scheduled.
func (p *Predictor) Sync() bool {
	if p.storage == nil {
		return false
	}
	gen := p.requested.Add(1)
	p.goBackground(func() {
		for p.saved.Load() < gen {
			_, err, _ := p.group.Do("sync", func() (any, error) {
				start := p.requested.Load()
				if err := p.Save(); err != nil {
					return nil, err
				}
				for {
					cur := p.saved.Load()
					if cur >= start || p.saved.CompareAndSwap(cur, start) {
						break
					}
				}
				return nil, nil
			})
			if err != nil {
				p.log.Error("sync failed", "err", err)
				return
			}
		}
	})
	return true
}

// goBackground runs fn on its own goroutine, tracked by WaitForSyncer.
func (p *Predictor) goBackground(fn func()) {
	p.bgMu.RLock()
	p.wg.Add(1)
	p.bgMu.RUnlock()
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// WaitForSyncer blocks until every scheduled Sync and Reload has finished.
// Work scheduled while it waits starts once it returns.
func (p *Predictor) WaitForSyncer() {
	p.bgMu.Lock()
	defer p.bgMu.Unlock()
	p.wg.Wait()
}

// Wait is WaitForSyncer.
func (p *Predictor) Wait() {
	p.WaitForSyncer()
}

// Save prunes the store and writes it to storage synchronously. Entries past
// their lifetime go first, then the least recently used beyond CacheStoreSize.
func (p *Predictor) Save() error {
	if p.storage == nil {
		return ErrNoStorage
	}
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.Lock()
	pruned := p.pruneLocked()
	data, err := encodeSnapshot(p.store.Oldest())
	p.stats.Pruned += pruned
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err := p.storage.Save(data); err != nil {
		p.mu.Lock()
		p.stats.SyncFailures++
		p.mu.Unlock()
		return fmt.Errorf("save history: %w", err)
	}
	p.mu.Lock()
	p.stats.Syncs++
	p.mu.Unlock()
	if pruned > 0 {
		p.log.Debug("pruned history", "entries", pruned)
	}
	return nil
}

func (p *Predictor) pruneLocked() int {
	cutoff := p.clock.Now().Unix() - int64(p.limits.EntryLifetimeDays)*24*60*60
	var drop []uint32
	kept := 0
	p.store.Each(func(fp uint32, e *Entry) bool {
		if e.LastAccessTime < cutoff || kept >= p.limits.CacheStoreSize {
			drop = append(drop, fp)
			return true
		}
		kept++
		return true
	})
	for _, fp := range drop {
		p.store.Erase(fp)
	}
	return len(drop)
}

// Load replaces the store with the saved snapshot. Entries with malformed
// text are dropped and counted. Nothing saved yet is an empty history.
func (p *Predictor) Load() (LoadStats, error) {
	var stats LoadStats
	if p.storage == nil {
		return stats, ErrNoStorage
	}
	data, err := p.storage.Load()
	if errors.Is(err, storage.ErrNotFound) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("load history: %w", err)
	}
	entries, err := decodeSnapshot(data)
	if err != nil {
		return stats, fmt.Errorf("decode history: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.store.Clear()
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			stats.Discarded++
			continue
		}
		slot, _ := p.store.Insert(EntryFingerprint(e))
		*slot = *e
		stats.Loaded++
	}
	p.stats.Loaded += stats.Loaded
	p.stats.Discarded += stats.Discarded
	if stats.Discarded > 0 {
		p.log.Warn("discarded invalid history entries", "count", stats.Discarded)
	}
	return stats, nil
}

// Reload runs Load in the background. It reports whether a load was scheduled.
func (p *Predictor) Reload() bool {
	if p.storage == nil {
		return false
	}
	p.goBackground(func() {
		_, err, _ := p.group.Do("load", func() (any, error) {
			_, err := p.Load()
			return nil, err
		})
		if err != nil {
			p.log.Error("reload failed", "err", err)
		}
	})
	return true
}
