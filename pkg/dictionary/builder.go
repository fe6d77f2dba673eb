package dictionary

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/conversion"
)

// ReadSource parses a tab separated dictionary source. Each line is
//
//	key <TAB> lid <TAB> rid <TAB> cost <TAB> value [<TAB> flags]
//
// where flags is any of "S" (spelling correction), "U" (user dictionary)
// and "X" (suffix word). Blank lines and lines starting with # are skipped.
func ReadSource(r io.Reader) ([]Token, error) {
	var tokens []Token
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, err := parseSourceLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		tokens = append(tokens, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary source: %w", err)
	}
	return tokens, nil
}

func parseSourceLine(line string) (Token, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return Token{}, fmt.Errorf("expected at least 5 fields, got %d", len(fields))
	}
	var ids [3]int
	for i, f := range fields[1:4] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Token{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		ids[i] = n
	}
	if ids[0] < 0 || ids[0] > math.MaxUint16 || ids[1] < 0 || ids[1] > math.MaxUint16 {
		return Token{}, fmt.Errorf("pos id out of range: %d %d", ids[0], ids[1])
	}
	if ids[2] < math.MinInt16 || ids[2] > math.MaxInt16 {
		return Token{}, fmt.Errorf("cost out of range: %d", ids[2])
	}
	t := Token{
		Key:   fields[0],
		Lid:   uint16(ids[0]),
		Rid:   uint16(ids[1]),
		Cost:  ids[2],
		Value: fields[4],
	}
	if t.Key == "" || t.Value == "" {
		return Token{}, fmt.Errorf("empty key or value")
	}
	if len(t.Key) > math.MaxUint16 || len(t.Value) > math.MaxUint16 {
		return Token{}, fmt.Errorf("entry too long")
	}
	if len(fields) > 5 {
		for _, f := range fields[5] {
			switch f {
			case 'S':
				t.Attributes |= conversion.SpellingCorrectionToken
			case 'U':
				t.Attributes |= conversion.UserDictionaryToken
			case 'X':
				t.Attributes |= conversion.SuffixDictionaryToken
			}
		}
	}
	return t, nil
}

// EncodeChunk serializes tokens in the format ReadChunk reads.
func EncodeChunk(tokens []Token) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, int32(len(tokens))); err != nil {
		return nil, err
	}
	for _, t := range tokens {
		for _, s := range []string{t.Key, t.Value} {
			if len(s) > math.MaxUint16 {
				return nil, fmt.Errorf("entry %q too long", s)
			}
			if err := binary.Write(&buf, binary.LittleEndian, uint16(len(s))); err != nil {
				return nil, err
			}
			buf.WriteString(s)
		}
		rec := struct {
			Lid, Rid uint16
			Cost     int16
			Attr     uint8
		}{t.Lid, t.Rid, int16(t.Cost), uint8(t.Attributes)}
		if err := binary.Write(&buf, binary.LittleEndian, rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// WriteChunks splits tokens into chunks of chunkSize and writes them to dir
// as dict_0001.bin onwards. It returns the number of chunks written.
func WriteChunks(dir string, tokens []Token, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if err := utils.EnsureDir(dir); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	written := 0
	for start := 0; start < len(tokens); start += chunkSize {
		end := min(start+chunkSize, len(tokens))
		data, err := EncodeChunk(tokens[start:end])
		if err != nil {
			return written, err
		}
		if err := utils.WriteFileAtomic(ChunkPath(dir, written+1), data, 0o644); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// BuildFromSource reads a source file and writes its chunks into dir.
func BuildFromSource(sourcePath, dir string, chunkSize int) (int, error) {
	if err := ValidateFileFormat(sourcePath, FormatSource); err != nil {
		return 0, err
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	tokens, err := ReadSource(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", sourcePath, err)
	}
	return WriteChunks(dir, tokens, chunkSize)
}
