package kana

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeKey folds full-width ASCII into half-width and half-width katakana
// into full-width, the shape history keys are stored in.
func NormalizeKey(s string) string {
	return width.Fold.String(s)
}

// FoldLower is NormalizeKey with ASCII letters lowercased.
func FoldLower(s string) string {
	return strings.ToLower(width.Fold.String(s))
}
