package kana

import "strings"

// kunrei maps a hiragana mora to its Kunrei-shiki spelling.
var kunrei = map[string]string{
	"あ": "a", "い": "i", "う": "u", "え": "e", "お": "o",
	"か": "ka", "き": "ki", "く": "ku", "け": "ke", "こ": "ko",
	"さ": "sa", "し": "si", "す": "su", "せ": "se", "そ": "so",
	"た": "ta", "ち": "ti", "つ": "tu", "て": "te", "と": "to",
	"な": "na", "に": "ni", "ぬ": "nu", "ね": "ne", "の": "no",
	"は": "ha", "ひ": "hi", "ふ": "hu", "へ": "he", "ほ": "ho",
	"ま": "ma", "み": "mi", "む": "mu", "め": "me", "も": "mo",
	"や": "ya", "ゆ": "yu", "よ": "yo",
	"ら": "ra", "り": "ri", "る": "ru", "れ": "re", "ろ": "ro",
	"わ": "wa", "ゐ": "wi", "ゑ": "we", "を": "wo", "ん": "n",
	"が": "ga", "ぎ": "gi", "ぐ": "gu", "げ": "ge", "ご": "go",
	"ざ": "za", "じ": "zi", "ず": "zu", "ぜ": "ze", "ぞ": "zo",
	"だ": "da", "ぢ": "di", "づ": "du", "で": "de", "ど": "do",
	"ば": "ba", "び": "bi", "ぶ": "bu", "べ": "be", "ぼ": "bo",
	"ぱ": "pa", "ぴ": "pi", "ぷ": "pu", "ぺ": "pe", "ぽ": "po",
	"ゔ": "vu",
	"ぁ": "xa", "ぃ": "xi", "ぅ": "xu", "ぇ": "xe", "ぉ": "xo",
	"ゃ": "xya", "ゅ": "xyu", "ょ": "xyo", "ゎ": "xwa", "っ": "xtu",
	"ー": "-",
}

var yoon = map[rune]string{'ゃ': "ya", 'ゅ': "yu", 'ょ': "yo"}

// ToRoman spells hiragana in Kunrei-shiki romaji, the layout a roman-input user
// actually types. Contracted sounds become "kya", "sya", a geminate っ doubles
// the next consonant and ー becomes "-". Everything else is width folded and
// lowercased.
func ToRoman(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i := 0; i < len(runes); {
		if runes[i] == 'っ' && i+1 < len(runes) {
			if next, _ := moraAt(runes, i+1); next != "" && !strings.ContainsRune("aiueon-", rune(next[0])) {
				b.WriteByte(next[0])
				i++
				continue
			}
		}
		if m, n := moraAt(runes, i); n > 0 {
			b.WriteString(m)
			i += n
			continue
		}
		b.WriteString(FoldLower(string(runes[i])))
		i++
	}
	return b.String()
}

// moraAt spells the mora starting at runes[i] and reports how many runes it
// consumed, folding a following small ya/yu/yo into the syllable.
func moraAt(runes []rune, i int) (string, int) {
	base, ok := kunrei[string(runes[i])]
	if !ok {
		return "", 0
	}
	if i+1 < len(runes) {
		if y, ok := yoon[runes[i+1]]; ok && len(base) >= 2 && strings.HasSuffix(base, "i") {
			return base[:len(base)-1] + y, 2
		}
	}
	return base, 1
}
