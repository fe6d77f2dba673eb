package dictionary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

const chunkPattern = "dict_%04d.bin"

// Loader manages lazy loading of dictionary chunks
type Loader struct {
	dirPath      string
	maxTokens    int
	loadedChunks map[int]bool
	chunkTokens  map[int][]Token
	trie         *patricia.Trie
	suffixes     []Token
	totalTokens  int
	mu           sync.RWMutex
	loadingCh    chan int
	done         chan struct{}
	stopOnce     sync.Once
	errorCount   map[int]int
	maxRetries   int
	log          *log.Logger
}

// ChunkInfo contains metadata about a chunk file
type ChunkInfo struct {
	ID         int
	Filename   string
	TokenCount int
}

// LoaderStats provides statistics about the loading process
type LoaderStats struct {
	LoadedTokens    int
	LoadedChunks    int
	AvailableChunks int
	IsLoading       bool
}

// NewLoader creates a loader for the chunk files in dirPath. maxTokens caps
// how many tokens Start queues, 0 loads every chunk.
func NewLoader(dirPath string, maxTokens int, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		dirPath:      dirPath,
		maxTokens:    maxTokens,
		loadedChunks: make(map[int]bool),
		chunkTokens:  make(map[int][]Token),
		trie:         patricia.NewTrie(),
		loadingCh:    make(chan int, 10),
		done:         make(chan struct{}),
		errorCount:   make(map[int]int),
		maxRetries:   3,
		log:          logger,
	}
}

// ChunkPath returns the file name of chunk id inside dir.
func ChunkPath(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf(chunkPattern, id))
}

// GetAvailable scans the directory for chunk files, lowest id first.
func (l *Loader) GetAvailable() ([]ChunkInfo, error) {
	files, err := filepath.Glob(filepath.Join(l.dirPath, "dict_*.bin"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan for chunk files: %w", err)
	}

	var chunks []ChunkInfo
	for _, file := range files {
		idStr := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "dict_"), ".bin")
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		count, err := chunkTokenCount(file)
		if err != nil {
			l.log.Warnf("Failed to read header of chunk %s: %v", file, err)
			count = 0
		}
		chunks = append(chunks, ChunkInfo{ID: id, Filename: file, TokenCount: count})
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ID < chunks[j].ID
	})
	return chunks, nil
}

func chunkTokenCount(filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var count int32
	if err := binary.Read(file, binary.LittleEndian, &count); err != nil {
		return 0, err
	}
	return int(count), nil
}

// HasChunks reports whether at least n chunk files exist.
func (l *Loader) HasChunks(n int) bool {
	chunks, err := l.GetAvailable()
	return err == nil && len(chunks) >= n
}

// Start queues chunks up to maxTokens and loads them in the background.
func (l *Loader) Start() error {
	chunks, err := l.GetAvailable()
	if err != nil {
		return fmt.Errorf("failed to get available chunks: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunk files found in %s", l.dirPath)
	}
	l.log.Debugf("Found %d chunk files", len(chunks))

	go l.backgroundLoader()

	budget := l.maxTokens
	if budget == 0 {
		for _, chunk := range chunks {
			budget += chunk.TokenCount
		}
	}

	queued := 0
	for _, chunk := range chunks {
		if queued >= budget {
			break
		}
		select {
		case l.loadingCh <- chunk.ID:
			l.log.Debugf("Queued chunk %d for loading", chunk.ID)
		case <-time.After(100 * time.Millisecond):
			l.log.Warnf("Loading queue full, chunk %d will be loaded later", chunk.ID)
		}
		queued += chunk.TokenCount
	}
	return nil
}

func (l *Loader) backgroundLoader() {
	for {
		select {
		case id := <-l.loadingCh:
			if err := l.Load(id); err != nil {
				l.log.Errorf("Failed to load chunk %d: %v", id, err)

				l.mu.Lock()
				l.errorCount[id]++
				attempts := l.errorCount[id]
				l.mu.Unlock()

				if attempts < l.maxRetries {
					l.log.Debugf("Retrying chunk %d (attempt %d/%d)", id, attempts+1, l.maxRetries)
					go func(id int) {
						select {
						case <-time.After(time.Duration(attempts) * time.Second):
						case <-l.done:
							return
						}
						select {
						case l.loadingCh <- id:
						case <-l.done:
						}
					}(id)
				} else {
					l.log.Errorf("Chunk %d failed %d times, giving up", id, l.maxRetries)
				}
			}
		case <-l.done:
			return
		}
	}
}

// Load reads chunk id into the trie. Loading a loaded chunk is a no-op.
func (l *Loader) Load(id int) error {
	l.mu.RLock()
	loaded := l.loadedChunks[id]
	l.mu.RUnlock()
	if loaded {
		return nil
	}

	tokens, err := ReadChunk(ChunkPath(l.dirPath, id))
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadedChunks[id] {
		return nil
	}
	for _, t := range tokens {
		l.insertLocked(t)
	}
	l.chunkTokens[id] = tokens
	l.loadedChunks[id] = true
	l.totalTokens += len(tokens)
	l.log.Debugf("Chunk %d loaded: %d tokens", id, len(tokens))
	return nil
}

// Add inserts tokens that do not come from a chunk file, such as user
// dictionary words. They survive Evict.
func (l *Loader) Add(tokens ...Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range tokens {
		l.insertLocked(t)
	}
	l.chunkTokens[-1] = append(l.chunkTokens[-1], tokens...)
	l.totalTokens += len(tokens)
}

func (l *Loader) insertLocked(t Token) {
	if t.Attributes&conversion.SuffixDictionaryToken != 0 {
		l.suffixes = append(l.suffixes, t)
	}
	key := patricia.Prefix(t.Key)
	if item := l.trie.Get(key); item != nil {
		l.trie.Set(key, append(item.([]Token), t))
		return
	}
	l.trie.Insert(key, []Token{t})
}

// ReadChunk decodes one chunk file: an int32 token count followed by
// records of uint16 key length, key, uint16 value length, value, uint16 lid,
// uint16 rid, int16 cost and one attribute byte.
func ReadChunk(filename string) ([]Token, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk file %s: %w", filename, err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var count int32
	if err := binary.Read(reader, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read chunk header: %w", err)
	}
	if count < 0 || count > maxChunkTokens {
		return nil, fmt.Errorf("invalid token count %d in %s", count, filename)
	}

	tokens := make([]Token, 0, count)
	for len(tokens) < int(count) {
		key, err := readString(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
		value, err := readString(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read value of %q: %w", key, err)
		}
		var rec struct {
			Lid, Rid uint16
			Cost     int16
			Attr     uint8
		}
		if err := binary.Read(reader, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("failed to read costs of %q: %w", key, err)
		}
		tokens = append(tokens, Token{
			Key:        key,
			Value:      value,
			Lid:        rec.Lid,
			Rid:        rec.Rid,
			Cost:       int(rec.Cost),
			Attributes: conversion.TokenAttribute(rec.Attr),
		})
	}
	return tokens, nil
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Evict removes chunk id from memory
func (l *Loader) Evict(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loadedChunks[id] {
		return fmt.Errorf("chunk %d is not loaded", id)
	}
	l.log.Debugf("Unloading chunk %d", id)
	delete(l.loadedChunks, id)
	l.totalTokens -= len(l.chunkTokens[id])
	delete(l.chunkTokens, id)
	l.rebuildTrie()
	return nil
}

// rebuildTrie reconstructs the trie from the tokens still held
func (l *Loader) rebuildTrie() {
	l.trie = patricia.NewTrie()
	l.suffixes = nil
	ids := make([]int, 0, len(l.chunkTokens))
	for id := range l.chunkTokens {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		for _, t := range l.chunkTokens[id] {
			l.insertLocked(t)
		}
	}
	l.log.Debugf("Trie rebuilt with %d loaded chunks", len(l.loadedChunks))
}

// GetStats returns current loading statistics
func (l *Loader) GetStats() LoaderStats {
	chunks, _ := l.GetAvailable()

	l.mu.RLock()
	defer l.mu.RUnlock()
	return LoaderStats{
		LoadedTokens:    l.totalTokens,
		LoadedChunks:    len(l.loadedChunks),
		AvailableChunks: len(chunks),
		IsLoading:       len(l.loadingCh) > 0,
	}
}

// Stop stops the background loading process
func (l *Loader) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// GetLoadedIDs returns the loaded chunk ids in ascending order
func (l *Loader) GetLoadedIDs() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]int, 0, len(l.loadedChunks))
	for id, loaded := range l.loadedChunks {
		if loaded {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
