package dictionary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMatrix(t *testing.T) {
	m, err := ReadMatrix(strings.NewReader("# rid lid cost\n3 3\n0 1 100\n1 2 -50\n"))
	require.NoError(t, err)

	rows, cols := m.Size()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, 100, m.GetTransitionCost(0, 1))
	assert.Equal(t, -50, m.GetTransitionCost(1, 2))
	assert.Equal(t, 0, m.GetTransitionCost(2, 2))
	assert.Equal(t, DefaultTransitionCost, m.GetTransitionCost(3, 0))

	m.Set(2, 2, 1<<20)
	assert.Equal(t, 32767, m.GetTransitionCost(2, 2), "costs saturate at int16")

	testCases := []struct {
		input       string
		description string
	}{
		{"", "empty"},
		{"3\n", "short header"},
		{"2 2\n0 1\n", "short line"},
		{"2 2\n0 2 5\n", "lid out of range"},
		{"2 2\n0 x 5\n", "not a number"},
	}
	for _, tc := range testCases {
		_, err := ReadMatrix(strings.NewReader(tc.input))
		assert.Error(t, err, tc.description)
	}
}

func TestLoadMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.def")
	require.NoError(t, os.WriteFile(path, []byte("2 2\n1 1 42\n"), 0o644))
	m, err := LoadMatrix(path)
	require.NoError(t, err)
	assert.Equal(t, 42, m.GetTransitionCost(1, 1))

	_, err = LoadMatrix(filepath.Join(t.TempDir(), "matrix.def"))
	assert.Error(t, err)
}

func TestLoadPosMatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pos.toml")
	require.NoError(t, os.WriteFile(path, []byte("general_symbol = 30\nunknown = 99\n"), 0o644))

	p, err := LoadPosMatcher(path)
	require.NoError(t, err)
	expected := DefaultPosMatcher()
	expected.GeneralSymbol = 30
	expected.Unknown = 99
	assert.Equal(t, expected, p)
	assert.True(t, p.IsGeneralSymbol(30))
	assert.False(t, p.IsGeneralSymbol(3))

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("general_symbol = \"x\"\n"), 0o644))
	p, err = LoadPosMatcher(bad)
	assert.Error(t, err)
	assert.Equal(t, DefaultPosMatcher(), p)
}

func TestDecoder(t *testing.T) {
	l := loadAll(t, writeTestDict(t, testTokens, 100))
	d := NewDecoder(l, ConstantConnector(0), DefaultPosMatcher())

	assert.Nil(t, d.Decode(&conversion.Request{}))

	results := d.Decode(&conversion.Request{Key: "わたしのなまえは"})
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "わたしのなまえは", r.Key)
	assert.Equal(t, "私の名前は", r.Value)
	assert.Equal(t, 300, r.Wcost)
	assert.Equal(t, uint16(1), r.Lid)
	assert.Equal(t, uint16(4), r.Rid)
	assert.Len(t, r.InnerSegmentBoundary, 4)
	assert.Equal(t, conversion.Realtime|conversion.RealtimeTop, r.Types)
	assert.NotZero(t, r.CandidateAttributes&conversion.AttrRealtimeConversion)

	results = d.Decode(&conversion.Request{Key: "わたしぬ"})
	require.Len(t, results, 1)
	assert.Equal(t, "私ぬ", results[0].Value)
	assert.Equal(t, 100+unknownWordCost, results[0].Wcost)
	assert.Equal(t, DefaultPosMatcher().Unknown, results[0].Rid)
}

func TestDecoderHistoryTransition(t *testing.T) {
	l := loadAll(t, writeTestDict(t, testTokens, 100))
	m := NewMatrix(10, 10)
	m.Set(5, 1, 700)
	d := NewDecoder(l, m, DefaultPosMatcher())

	req := &conversion.Request{
		Key:     "わたし",
		History: []conversion.Segment{{Key: "ね", Value: "ね", Rid: 5}},
	}
	results := d.Decode(req)
	require.Len(t, results, 1)
	assert.Equal(t, "私", results[0].Value)
	assert.Equal(t, 100, results[0].Wcost, "the history transition is not part of the word cost")
}

func TestKanaCorrector(t *testing.T) {
	l := loadAll(t, writeTestDict(t, testTokens, 100))
	c := NewKanaCorrector(l)

	queries := c.CorrectComposition(&conversion.Request{Key: "かっこう"})
	require.Len(t, queries, 1)
	assert.Equal(t, conversion.TypeCorrectedQuery{Correction: "がっこう", Score: 0.25, Bias: correctionBias}, queries[0])

	assert.Nil(t, c.CorrectComposition(&conversion.Request{Key: "か"}))
	assert.Empty(t, c.CorrectComposition(&conversion.Request{Key: "がっこう"}))
}

type resultView struct {
	Key   string
	Value string
	Types conversion.ResultType
}

func view(results []conversion.Result) []resultView {
	out := make([]resultView, len(results))
	for i, r := range results {
		out[i] = resultView{r.Key, r.Value, r.Types}
	}
	return out
}

func TestAggregatorDesktop(t *testing.T) {
	l := loadAll(t, writeTestDict(t, testTokens, 100))
	agg := NewAggregator(l, nil, nil, AggregatorOptions{})

	testCases := []struct {
		req         *conversion.Request
		expected    []resultView
		description string
	}{
		{&conversion.Request{}, []resultView{}, "empty key"},
		{
			&conversion.Request{Key: "わた"},
			[]resultView{
				{"わたし", "私", conversion.Unigram},
				{"わたしたち", "私たち", conversion.Unigram},
				{"わたし", "わたし", conversion.Unigram},
			},
			"unigram",
		},
		{
			&conversion.Request{Key: "さ"},
			[]resultView{{"さん", "さん", conversion.Suffix}},
			"suffix word",
		},
		{
			&conversion.Request{Key: "たち", History: []conversion.Segment{{Key: "わたし", Value: "私"}}},
			[]resultView{{"たち", "たち", conversion.Bigram}},
			"bigram continues the history",
		},
		{
			&conversion.Request{Key: "がっk", KeyBase: "がっ", KeyExpanded: []string{"こ", "か"}},
			[]resultView{{"がっこう", "学校", conversion.Unigram | conversion.KeyExpandedInDictionary}},
			"expanded key",
		},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, view(agg.AggregateResultsForDesktop(tc.req)), tc.description)
	}
}

func TestAggregatorMixedConversion(t *testing.T) {
	l := loadAll(t, writeTestDict(t, testTokens, 100))
	agg := NewAggregator(l, NewDecoder(l, ConstantConnector(0), DefaultPosMatcher()), NewKanaCorrector(l), AggregatorOptions{})

	zero := agg.AggregateResultsForMixedConversion(&conversion.Request{ZeroQuerySuggestion: true, MixedConversion: true})
	assert.Equal(t, []resultView{{"さん", "さん", conversion.Suffix}}, view(zero))

	results := agg.AggregateResultsForMixedConversion(&conversion.Request{Key: "わたしの", AutoPartialSuggestion: true, MixedConversion: true})
	assert.Equal(t, []resultView{
		{"わたしの", "私の", conversion.Realtime | conversion.RealtimeTop},
		{"わたし", "私", conversion.Prefix},
		{"わたし", "わたし", conversion.Prefix},
	}, view(results))
	assert.Equal(t, 3, results[1].ConsumedKeySize)
	assert.NotZero(t, results[1].CandidateAttributes&conversion.AttrPartiallyKeyConsumed)

	corrected := agg.AggregateTypingCorrectedResultsForMixedConversion(&conversion.Request{Key: "かっこう", MixedConversion: true})
	require.Len(t, corrected, 1)
	assert.Equal(t, "学校", corrected[0].Value)
	assert.Equal(t, conversion.Unigram|conversion.TypingCorrection, corrected[0].Types)
	assert.Equal(t, 200+575, corrected[0].Wcost)
	assert.NotZero(t, corrected[0].CandidateAttributes&conversion.AttrTypingCorrection)

	assert.Nil(t, NewAggregator(l, nil, nil, AggregatorOptions{}).
		AggregateTypingCorrectedResultsForMixedConversion(&conversion.Request{Key: "かっこう"}))
}
