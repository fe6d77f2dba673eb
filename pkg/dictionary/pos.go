package dictionary

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// PosMatcher names the part-of-speech ids the predictors treat specially.
type PosMatcher struct {
	GeneralNoun       uint16 `toml:"general_noun"`
	UniqueNoun        uint16 `toml:"unique_noun"`
	GeneralSymbol     uint16 `toml:"general_symbol"`
	Functional        uint16 `toml:"functional"`
	Adverb            uint16 `toml:"adverb"`
	CounterSuffixWord uint16 `toml:"counter_suffix_word"`
	Number            uint16 `toml:"number"`
	Unknown           uint16 `toml:"unknown"`
}

// DefaultPosMatcher returns the ids used by the bundled dictionary data.
func DefaultPosMatcher() PosMatcher {
	return PosMatcher{
		GeneralNoun:       1,
		UniqueNoun:        2,
		GeneralSymbol:     3,
		Functional:        4,
		Adverb:            5,
		CounterSuffixWord: 6,
		Number:            7,
		Unknown:           8,
	}
}

// IsGeneralSymbol reports whether id is the symbol id emoticons map to.
func (p PosMatcher) IsGeneralSymbol(id uint16) bool {
	return id == p.GeneralSymbol
}

// LoadPosMatcher reads ids from a TOML file. Ids missing from the file keep
// their default.
func LoadPosMatcher(path string) (PosMatcher, error) {
	p := DefaultPosMatcher()
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return DefaultPosMatcher(), fmt.Errorf("failed to parse pos ids %s: %w", path, err)
	}
	return p, nil
}
