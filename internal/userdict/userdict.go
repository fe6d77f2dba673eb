// Package userdict reads the YAML user dictionary: words the user added,
// (key, value) pairs the user never wants suggested and values that must not
// be offered unprompted.
package userdict

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/dictionary"
	"gopkg.in/yaml.v3"
)

// DefaultWordCost is the token cost of a user word without an explicit cost.
const DefaultWordCost = 5000

// Word is one user dictionary entry.
type Word struct {
	Key     string `yaml:"key"`
	Value   string `yaml:"value"`
	POS     string `yaml:"pos,omitempty"` // noun | symbol | suffix
	Cost    int    `yaml:"cost,omitempty"`
	Comment string `yaml:"comment,omitempty"`
}

// Pair names a (key, value) pair. An empty key matches every key.
type Pair struct {
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value"`
}

// File is the on-disk layout.
type File struct {
	Words          []Word   `yaml:"words,omitempty"`
	Suppress       []Pair   `yaml:"suppress,omitempty"`
	BadSuggestions []string `yaml:"bad_suggestions,omitempty"`
}

// Dictionary is the loaded user dictionary. The zero value is empty and
// ready to use.
type Dictionary struct {
	mu         sync.RWMutex
	file       File
	suppressed map[Pair]bool
	bad        map[string]bool
}

// Parse decodes YAML data into a Dictionary.
func Parse(data []byte) (*Dictionary, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode user dictionary: %w", err)
	}
	d := &Dictionary{}
	if err := d.set(f); err != nil {
		return nil, err
	}
	return d, nil
}

// Load reads path. A missing file yields an empty dictionary.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Dictionary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user dictionary: %w", err)
	}
	return Parse(data)
}

// Reload replaces the contents with path.
func (d *Dictionary) Reload(path string) error {
	fresh, err := Load(path)
	if err != nil {
		return err
	}
	fresh.mu.RLock()
	f := fresh.file
	fresh.mu.RUnlock()
	return d.set(f)
}

func (d *Dictionary) set(f File) error {
	suppressed := make(map[Pair]bool, len(f.Suppress))
	for i, p := range f.Suppress {
		if strings.TrimSpace(p.Value) == "" {
			return fmt.Errorf("suppress entry %d: value is required", i)
		}
		suppressed[p] = true
	}
	for i, w := range f.Words {
		if strings.TrimSpace(w.Key) == "" || strings.TrimSpace(w.Value) == "" {
			return fmt.Errorf("word %d: key and value are required", i)
		}
		switch w.POS {
		case "", "noun", "symbol", "suffix":
		default:
			return fmt.Errorf("word %d: unknown pos %q", i, w.POS)
		}
	}
	bad := make(map[string]bool, len(f.BadSuggestions))
	for _, v := range f.BadSuggestions {
		bad[v] = true
	}

	d.mu.Lock()
	d.file = f
	d.suppressed = suppressed
	d.bad = bad
	d.mu.Unlock()
	return nil
}

// Save writes the dictionary to path atomically.
func (d *Dictionary) Save(path string) error {
	d.mu.RLock()
	data, err := yaml.Marshal(&d.file)
	d.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode user dictionary: %w", err)
	}
	return utils.WriteFileAtomic(path, data, 0o600)
}

// IsSuppressedEntry reports whether (key, value) must never be suggested.
// Keys are compared after width folding so that a half width entry matches
// its full width input.
func (d *Dictionary) IsSuppressedEntry(key, value string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.suppressed) == 0 {
		return false
	}
	if d.suppressed[Pair{Value: value}] || d.suppressed[Pair{Key: key, Value: value}] {
		return true
	}
	return d.suppressed[Pair{Key: kana.NormalizeKey(key), Value: value}]
}

// IsBadSuggestion reports values that may be converted to but not suggested.
func (d *Dictionary) IsBadSuggestion(value string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bad[value]
}

// Suppress adds a pair to the suppression list.
func (d *Dictionary) Suppress(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := Pair{Key: key, Value: value}
	if d.suppressed == nil {
		d.suppressed = make(map[Pair]bool)
	}
	if d.suppressed[p] {
		return
	}
	d.suppressed[p] = true
	d.file.Suppress = append(d.file.Suppress, p)
}

func (d *Dictionary) Words() []Word {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Word(nil), d.file.Words...)
}

// Tokens converts the words into dictionary tokens carrying the user
// dictionary attribute.
func (d *Dictionary) Tokens(pos dictionary.PosMatcher) []dictionary.Token {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tokens := make([]dictionary.Token, 0, len(d.file.Words))
	for _, w := range d.file.Words {
		id := pos.GeneralNoun
		attrs := conversion.UserDictionaryToken
		switch w.POS {
		case "symbol":
			id = pos.GeneralSymbol
		case "suffix":
			id = pos.CounterSuffixWord
			attrs |= conversion.SuffixDictionaryToken
		}
		cost := w.Cost
		if cost <= 0 {
			cost = DefaultWordCost
		}
		tokens = append(tokens, dictionary.Token{
			Key:        kana.NormalizeKey(w.Key),
			Value:      w.Value,
			Lid:        id,
			Rid:        id,
			Cost:       cost,
			Attributes: attrs,
		})
	}
	return tokens
}
