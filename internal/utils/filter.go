package utils

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ValidateKey checks a reading received from a client. Empty keys are valid
// (zero query). maxLen counts characters; 0 disables the check.
func ValidateKey(key string, maxLen int) error {
	if !utf8.ValidString(key) {
		return fmt.Errorf("key is not valid UTF-8")
	}
	if maxLen > 0 && utf8.RuneCountInString(key) > maxLen {
		return fmt.Errorf("key longer than %d characters", maxLen)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("key contains control character %U", r)
		}
	}
	return nil
}

// ValidatePair checks a (key, value) pair sent for learning or removal.
func ValidatePair(key, value string, maxLen int) error {
	if key == "" || value == "" {
		return fmt.Errorf("key and value are required")
	}
	if err := ValidateKey(key, maxLen); err != nil {
		return err
	}
	return ValidateKey(value, maxLen)
}

// IsOnlyNumbers reports whether s is non-empty and made of digits only.
func IsOnlyNumbers(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// IsRepetitive reports a string of three or more copies of one character,
// like "ああああ" or "ーーー".
func IsRepetitive(s string) bool {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 || utf8.RuneCountInString(s) < 3 {
		return false
	}
	for _, r := range s[size:] {
		if r != first {
			return false
		}
	}
	return true
}

// IsLearnable reports whether a committed value is worth learning from raw
// text. Bare numbers and runs of one character are not.
func IsLearnable(value string) bool {
	return value != "" && !IsOnlyNumbers(value) && !IsRepetitive(value)
}
