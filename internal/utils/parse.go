package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadTOMLFile decodes a TOML file into v. It returns the keys present in the
// file that v has no field for.
func LoadTOMLFile(path string, v any) ([]string, error) {
	md, err := toml.DecodeFile(path, v)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return unknown, nil
}

// ParseTOMLWithRecovery decodes path into a generic map so that individual
// sections can be salvaged when the file does not fit the typed config. When
// the file is not valid TOML each top level table is decoded on its own and
// the broken ones are skipped.
func ParseTOMLWithRecovery(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := make(map[string]any)
	_, fullErr := toml.Decode(string(data), &raw)
	if fullErr == nil {
		return raw, nil
	}

	raw = make(map[string]any)
	for _, block := range splitTables(string(data)) {
		part := make(map[string]any)
		if _, err := toml.Decode(block, &part); err != nil {
			continue
		}
		for k, v := range part {
			raw[k] = v
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("recover %s: %w", path, fullErr)
	}
	return raw, nil
}

// splitTables cuts a TOML document at every "[table]" header line.
func splitTables(doc string) []string {
	var blocks []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[[") && cur.Len() > 0 {
			blocks = append(blocks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		blocks = append(blocks, cur.String())
	}
	return blocks
}

// ExtractSection returns the table named name.
func ExtractSection(data map[string]any, name string) (map[string]any, bool) {
	section, ok := data[name].(map[string]any)
	return section, ok
}

// ExtractInt reads an integer key. TOML integers decode as int64.
func ExtractInt(data map[string]any, key string) (int, bool) {
	if val, ok := data[key].(int64); ok {
		return int(val), true
	}
	return 0, false
}

func ExtractBool(data map[string]any, key string) (bool, bool) {
	val, ok := data[key].(bool)
	return val, ok
}

func ExtractString(data map[string]any, key string) (string, bool) {
	val, ok := data[key].(string)
	return val, ok
}
