// Package kana holds the small amount of Japanese text knowledge the predictors need:
// script classification, kana folding, Kunrei romanization and punctuation tables.
package kana

import (
	"unicode"
	"unicode/utf8"
)

// Script is the writing system of a rune or a whole string.
type Script int

const (
	Unknown Script = iota
	Kanji
	Hiragana
	Katakana
	Number
	Alphabet
)

func (s Script) String() string {
	switch s {
	case Kanji:
		return "kanji"
	case Hiragana:
		return "hiragana"
	case Katakana:
		return "katakana"
	case Number:
		return "number"
	case Alphabet:
		return "alphabet"
	}
	return "unknown"
}

const (
	prolongedSoundMark = 'ー'
	iterationMark      = '々'
)

// RuneScript classifies a single rune. Full-width digits and letters count as
// Number and Alphabet.
func RuneScript(r rune) Script {
	switch {
	case r >= 0x3041 && r <= 0x309F:
		return Hiragana
	case (r >= 0x30A1 && r <= 0x30FF) || (r >= 0x31F0 && r <= 0x31FF) || (r >= 0xFF66 && r <= 0xFF9F):
		return Katakana
	case r == iterationMark || unicode.Is(unicode.Han, r):
		return Kanji
	case (r >= '0' && r <= '9') || (r >= '０' && r <= '９'):
		return Number
	case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= 'ａ' && r <= 'ｚ') || (r >= 'Ａ' && r <= 'Ｚ'):
		return Alphabet
	}
	return Unknown
}

// ScriptOf returns the script shared by every rune of s, or Unknown when s is
// empty or mixes scripts. The prolonged sound mark takes the script of its
// neighbours, so "こーひー" is Hiragana and "ー" alone is Katakana.
func ScriptOf(s string) Script {
	result := Unknown
	sawMark := false
	for _, r := range s {
		if r == prolongedSoundMark {
			sawMark = true
			continue
		}
		sc := RuneScript(r)
		if sc == Unknown {
			return Unknown
		}
		if result == Unknown {
			result = sc
			continue
		}
		if result != sc {
			return Unknown
		}
	}
	if result == Unknown && sawMark {
		return Katakana
	}
	if sawMark && result != Hiragana && result != Katakana {
		return Unknown
	}
	return result
}

// CharsLen counts code points.
func CharsLen(s string) int {
	return utf8.RuneCountInString(s)
}

// IsHiraganaOnly reports whether s is non-empty and made only of hiragana and ー.
func IsHiraganaOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != prolongedSoundMark && RuneScript(r) != Hiragana {
			return false
		}
	}
	return true
}

// IsASCIIDigits reports whether s is non-empty and made only of 0-9.
func IsASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsContentWord reports whether a value carries meaning on its own.
// Single symbols such as "、" or "!" do not.
func IsContentWord(value string) bool {
	return CharsLen(value) > 1 || ScriptOf(value) != Unknown
}

// IsSmallKana reports small hiragana or katakana such as ゃ, ッ, ぁ.
func IsSmallKana(r rune) bool {
	switch r {
	case 'ぁ', 'ぃ', 'ぅ', 'ぇ', 'ぉ', 'っ', 'ゃ', 'ゅ', 'ょ', 'ゎ', 'ゕ', 'ゖ',
		'ァ', 'ィ', 'ゥ', 'ェ', 'ォ', 'ッ', 'ャ', 'ュ', 'ョ', 'ヮ', 'ヵ', 'ヶ':
		return true
	}
	return false
}

// KatakanaToHiragana folds full-width katakana into hiragana. Other runes pass through.
func KatakanaToHiragana(s string) string {
	out := make([]rune, 0, len(s)/3+1)
	for _, r := range s {
		if r >= 0x30A1 && r <= 0x30F6 {
			r -= 0x60
		}
		out = append(out, r)
	}
	return string(out)
}
