package dictionary

import (
	"fmt"
	"sort"
	"sync"
)

// RuntimeLoader resizes a running Loader to a target number of chunks.
type RuntimeLoader struct {
	loader       *Loader
	targetChunks int
	mu           sync.Mutex
}

// NewRuntimeLoader creates a new runtime loader
func NewRuntimeLoader(loader *Loader) *RuntimeLoader {
	return &RuntimeLoader{loader: loader}
}

// GetMaxTokensAvailable returns the number of tokens across all chunk files.
func (rl *RuntimeLoader) GetMaxTokensAvailable() (int, error) {
	chunks, err := rl.loader.GetAvailable()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, chunk := range chunks {
		total += chunk.TokenCount
	}
	return total, nil
}

// SetDictionarySize loads or evicts chunks until targetChunks are held.
// Lower chunk ids are loaded first and evicted last.
func (rl *RuntimeLoader) SetDictionarySize(targetChunks int) error {
	if targetChunks < 1 {
		return fmt.Errorf("minimum dictionary size is 1 chunk")
	}
	if !rl.loader.HasChunks(targetChunks) {
		return fmt.Errorf("only %d chunks available, %d requested", rl.loader.GetStats().AvailableChunks, targetChunks)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	current := len(rl.loader.GetLoadedIDs())
	rl.loader.log.Debugf("Setting dictionary size: current=%d chunks, target=%d chunks", current, targetChunks)

	var err error
	switch {
	case targetChunks > current:
		err = rl.loadAdditionalChunks(targetChunks - current)
	case targetChunks < current:
		err = rl.unloadExcessChunks(current - targetChunks)
	}
	if err != nil {
		return err
	}
	rl.targetChunks = targetChunks
	return nil
}

// Target returns the last size set.
func (rl *RuntimeLoader) Target() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.targetChunks
}

func (rl *RuntimeLoader) loadAdditionalChunks(additional int) error {
	chunks, err := rl.loader.GetAvailable()
	if err != nil {
		return err
	}
	loaded := make(map[int]bool)
	for _, id := range rl.loader.GetLoadedIDs() {
		loaded[id] = true
	}
	count := 0
	for _, chunk := range chunks {
		if count >= additional {
			break
		}
		if loaded[chunk.ID] {
			continue
		}
		if err := rl.loader.Load(chunk.ID); err != nil {
			rl.loader.log.Warnf("Failed to load chunk %d: %v", chunk.ID, err)
			continue
		}
		count++
	}
	rl.loader.log.Debugf("Loaded %d additional chunks", count)
	if count < additional {
		return fmt.Errorf("loaded %d of %d requested chunks", count, additional)
	}
	return nil
}

// unloadExcessChunks evicts the highest chunk ids first
func (rl *RuntimeLoader) unloadExcessChunks(excess int) error {
	ids := rl.loader.GetLoadedIDs()
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	count := 0
	for _, id := range ids {
		if count >= excess {
			break
		}
		if err := rl.loader.Evict(id); err != nil {
			rl.loader.log.Warnf("Failed to unload chunk %d: %v", id, err)
			continue
		}
		count++
	}
	rl.loader.log.Debugf("Unloaded %d chunks", count)
	return nil
}

// DictionarySizeOption is one selectable dictionary size.
type DictionarySizeOption struct {
	ChunkCount int    `msgpack:"chunks"`
	TokenCount int    `msgpack:"tokens"`
	SizeLabel  string `msgpack:"label"`
}

// GetDictionarySizeOptions lists the cumulative sizes reachable by loading
// chunks in order.
func (rl *RuntimeLoader) GetDictionarySizeOptions() ([]DictionarySizeOption, error) {
	chunks, err := rl.loader.GetAvailable()
	if err != nil {
		return nil, err
	}
	options := make([]DictionarySizeOption, 0, len(chunks))
	total := 0
	for i, chunk := range chunks {
		total += chunk.TokenCount
		options = append(options, DictionarySizeOption{
			ChunkCount: i + 1,
			TokenCount: total,
			SizeLabel:  fmt.Sprintf("%dK tokens", total/1000),
		})
	}
	return options, nil
}
