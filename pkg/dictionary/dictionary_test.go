package dictionary

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

var testTokens = []Token{
	{Key: "わたし", Value: "私", Lid: 1, Rid: 1, Cost: 100},
	{Key: "わたし", Value: "わたし", Lid: 1, Rid: 1, Cost: 3000},
	{Key: "わたしたち", Value: "私たち", Lid: 1, Rid: 1, Cost: 500},
	{Key: "の", Value: "の", Lid: 4, Rid: 4, Cost: 50},
	{Key: "なまえ", Value: "名前", Lid: 1, Rid: 1, Cost: 100},
	{Key: "は", Value: "は", Lid: 4, Rid: 4, Cost: 50},
	{Key: "は", Value: "葉", Lid: 1, Rid: 1, Cost: 2000},
	{Key: "は", Value: "歯", Lid: 1, Rid: 1, Cost: 1800},
	{Key: "さん", Value: "さん", Lid: 6, Rid: 6, Cost: 300, Attributes: conversion.SuffixDictionaryToken},
	{Key: "がっこう", Value: "学校", Lid: 1, Rid: 1, Cost: 200},
	{Key: "あぼがど", Value: "アボカド", Lid: 1, Rid: 1, Cost: 900, Attributes: conversion.SpellingCorrectionToken},
}

func writeTestDict(t *testing.T, tokens []Token, chunkSize int) string {
	t.Helper()
	dir := t.TempDir()
	_, err := WriteChunks(dir, tokens, chunkSize)
	require.NoError(t, err)
	return dir
}

func loadAll(t *testing.T, dir string) *Loader {
	t.Helper()
	l := NewLoader(dir, 0, quietLogger())
	chunks, err := l.GetAvailable()
	require.NoError(t, err)
	for _, c := range chunks {
		require.NoError(t, l.Load(c.ID))
	}
	return l
}

func values(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Value
	}
	return out
}

func TestReadSource(t *testing.T) {
	testCases := []struct {
		input       string
		expected    []Token
		wantErr     bool
		description string
	}{
		{
			"わたし\t1\t1\t100\t私\n",
			[]Token{{Key: "わたし", Value: "私", Lid: 1, Rid: 1, Cost: 100}},
			false, "single line",
		},
		{
			"# comment\n\nあぼがど\t1\t2\t900\tアボカド\tS\nさん\t6\t6\t300\tさん\tUX\n",
			[]Token{
				{Key: "あぼがど", Value: "アボカド", Lid: 1, Rid: 2, Cost: 900, Attributes: conversion.SpellingCorrectionToken},
				{Key: "さん", Value: "さん", Lid: 6, Rid: 6, Cost: 300, Attributes: conversion.UserDictionaryToken | conversion.SuffixDictionaryToken},
			},
			false, "comments and flags",
		},
		{"わたし\t1\t1\t100\n", nil, true, "missing value"},
		{"わたし\tx\t1\t100\t私\n", nil, true, "non numeric id"},
		{"わたし\t1\t1\t40000\t私\n", nil, true, "cost overflow"},
		{"わたし\t70000\t1\t100\t私\n", nil, true, "id overflow"},
	}
	for _, tc := range testCases {
		got, err := ReadSource(strings.NewReader(tc.input))
		if tc.wantErr {
			assert.Error(t, err, tc.description)
			continue
		}
		require.NoError(t, err, tc.description)
		assert.Equal(t, tc.expected, got, tc.description)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	dir := writeTestDict(t, testTokens, 4)

	l := NewLoader(dir, 0, quietLogger())
	chunks, err := l.GetAvailable()
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{4, 4, 3}, []int{chunks[0].TokenCount, chunks[1].TokenCount, chunks[2].TokenCount})

	var all []Token
	for _, c := range chunks {
		tokens, err := ReadChunk(c.Filename)
		require.NoError(t, err)
		all = append(all, tokens...)
	}
	assert.Equal(t, testTokens, all)

	_, err = WriteChunks(dir, testTokens, 0)
	assert.Error(t, err)
}

func TestReadChunkRejectsTruncatedFile(t *testing.T) {
	dir := writeTestDict(t, testTokens, 100)
	path := ChunkPath(dir, 1)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-3], 0o644))

	_, err = ReadChunk(path)
	assert.Error(t, err)
}

func TestLoaderLookups(t *testing.T) {
	l := loadAll(t, writeTestDict(t, testTokens, 4))

	assert.Equal(t, []string{"名前"}, values(l.LookupExact("なまえ")))
	assert.Nil(t, l.LookupExact("ない"))
	assert.Nil(t, l.LookupExact(""))

	assert.Equal(t, []string{"私", "私たち", "わたし"}, values(l.LookupPredictive("わた", 0)))
	assert.Equal(t, []string{"私"}, values(l.LookupPredictive("わた", 1)))
	assert.Equal(t, []string{"私", "私たち"}, values(l.LookupPredictive("わた", 2)),
		"the limit keeps the cheapest tokens of the whole subtree")

	assert.Equal(t, []string{"私たち", "私", "わたし"}, values(l.LookupPrefix("わたしたちは")),
		"longest key first, then cheapest")

	assert.Equal(t, []string{"歯", "葉"}, l.LookupSingleKanji("は"))
	assert.Equal(t, []string{"さん"}, values(l.SuffixTokens()))
	assert.True(t, l.HasKey("がっこう"))
	assert.False(t, l.HasKey("がっ"))
}

func TestLoaderEvict(t *testing.T) {
	l := loadAll(t, writeTestDict(t, testTokens, 4))
	l.Add(Token{Key: "わたしたち", Value: "ワタシタチ", Lid: 1, Rid: 1, Cost: 10, Attributes: conversion.UserDictionaryToken})
	assert.Equal(t, []int{1, 2, 3}, l.GetLoadedIDs())
	assert.Equal(t, len(testTokens)+1, l.GetStats().LoadedTokens)

	require.NoError(t, l.Evict(2))
	assert.Error(t, l.Evict(2))
	assert.Equal(t, []int{1, 3}, l.GetLoadedIDs())
	assert.Nil(t, l.LookupExact("なまえ"), "chunk 2 tokens are gone")
	assert.Equal(t, []string{"ワタシタチ", "私たち"}, values(l.LookupPredictive("わたしたち", 0)), "added tokens survive")
	assert.Equal(t, []string{"さん"}, values(l.SuffixTokens()))

	require.NoError(t, l.Load(2))
	assert.Equal(t, []string{"名前"}, values(l.LookupExact("なまえ")))
}

func TestLoaderStart(t *testing.T) {
	l := NewLoader(writeTestDict(t, testTokens, 4), 0, quietLogger())
	defer l.Stop()
	require.NoError(t, l.Start())
	require.Eventually(t, func() bool {
		return len(l.GetLoadedIDs()) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, LoaderStats{LoadedTokens: len(testTokens), LoadedChunks: 3, AvailableChunks: 3}, l.GetStats())

	empty := NewLoader(t.TempDir(), 0, quietLogger())
	assert.Error(t, empty.Start())
	empty.Stop()
	empty.Stop()
}

func TestLoaderStartRespectsMaxTokens(t *testing.T) {
	l := NewLoader(writeTestDict(t, testTokens, 4), 5, quietLogger())
	defer l.Stop()
	require.NoError(t, l.Start())
	require.Eventually(t, func() bool {
		return len(l.GetLoadedIDs()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, l.GetLoadedIDs())
}

func TestRuntimeLoader(t *testing.T) {
	l := NewLoader(writeTestDict(t, testTokens, 4), 0, quietLogger())
	rl := NewRuntimeLoader(l)

	require.NoError(t, rl.SetDictionarySize(2))
	assert.Equal(t, []int{1, 2}, l.GetLoadedIDs())
	assert.Equal(t, 2, rl.Target())

	require.NoError(t, rl.SetDictionarySize(1))
	assert.Equal(t, []int{1}, l.GetLoadedIDs())

	require.NoError(t, rl.SetDictionarySize(3))
	assert.Equal(t, []int{1, 2, 3}, l.GetLoadedIDs())

	assert.Error(t, rl.SetDictionarySize(0))
	assert.Error(t, rl.SetDictionarySize(4))
	assert.Equal(t, 3, rl.Target())

	total, err := rl.GetMaxTokensAvailable()
	require.NoError(t, err)
	assert.Equal(t, len(testTokens), total)

	options, err := rl.GetDictionarySizeOptions()
	require.NoError(t, err)
	require.Len(t, options, 3)
	assert.Equal(t, DictionarySizeOption{ChunkCount: 2, TokenCount: 8, SizeLabel: "0K tokens"}, options[1])
}

func TestFormats(t *testing.T) {
	dir := writeTestDict(t, testTokens, 100)
	source := filepath.Join(dir, "words.tsv")
	require.NoError(t, os.WriteFile(source, []byte("わたし\t1\t1\t100\t私\n"), 0o644))
	matrix := filepath.Join(dir, "matrix.def")
	require.NoError(t, os.WriteFile(matrix, []byte("2 2\n0 1 10\n"), 0o644))
	junk := filepath.Join(dir, "junk.tsv")
	require.NoError(t, os.WriteFile(junk, []byte("only two\n"), 0o644))

	testCases := []struct {
		path        string
		expected    FileFormat
		wantErr     bool
		description string
	}{
		{ChunkPath(dir, 1), FormatChunk, false, "chunk"},
		{source, FormatSource, false, "source"},
		{matrix, FormatMatrix, false, "matrix"},
		{junk, FormatUnknown, true, "too few fields"},
		{filepath.Join(dir, "missing.tsv"), FormatUnknown, true, "missing file"},
	}
	for _, tc := range testCases {
		got, err := DetectFileFormat(tc.path)
		assert.Equal(t, tc.expected, got, tc.description)
		if tc.wantErr {
			assert.Error(t, err, tc.description)
		} else {
			assert.NoError(t, err, tc.description)
		}
	}

	assert.Error(t, ValidateFileFormat(source, FormatChunk), "wrong extension")
	info, ok := GetFormatInfo(FormatChunk)
	assert.True(t, ok)
	assert.Equal(t, ".bin", info.Extensions[0])
}

func TestBuildFromSource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "words.tsv")
	require.NoError(t, os.WriteFile(source, []byte(
		"わたし\t1\t1\t100\t私\nなまえ\t1\t1\t100\t名前\nの\t4\t4\t50\tの\n"), 0o644))

	out := filepath.Join(dir, "out")
	n, err := BuildFromSource(source, out, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	l := loadAll(t, out)
	assert.Equal(t, []string{"名前"}, values(l.LookupExact("なまえ")))
}
