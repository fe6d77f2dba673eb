package kana

import "unicode/utf8"

// IsPunctuation reports whether value is one of the clause or sentence marks
// that never start a learned continuation.
func IsPunctuation(value string) bool {
	switch value {
	case "。", "｡", "、", "､", "，", ",", "．", ".", "？", "?", "！", "!":
		return true
	}
	return false
}

// IsSentenceEnding reports whether value ends with a sentence terminator.
func IsSentenceEnding(value string) bool {
	r, _ := utf8.DecodeLastRuneInString(value)
	switch r {
	case '。', '｡', '．', '！', '？', '!', '?':
		return true
	}
	return false
}

// StartsWithPunctuation reports whether the first character of value is punctuation.
func StartsWithPunctuation(value string) bool {
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError {
		return false
	}
	return IsPunctuation(value[:size])
}

// IsObsoleteEmoji reports carrier private-use emoji that no longer render.
func IsObsoleteEmoji(value string) bool {
	for _, r := range value {
		if r >= 0xFE000 && r <= 0xFEEA0 {
			return true
		}
	}
	return false
}
