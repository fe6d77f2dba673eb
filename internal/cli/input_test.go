package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/history"
	"github.com/bastiangx/kanaserve/pkg/storage"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type historyPredictor struct {
	*history.Predictor
	requests []*conversion.Request
}

func (p *historyPredictor) Predict(_ context.Context, req *conversion.Request) ([]conversion.Result, error) {
	p.requests = append(p.requests, req)
	return p.Predictor.Predict(req), nil
}

type fakeSegmenter struct{}

func (fakeSegmenter) Segment(string) []conversion.Segment {
	return []conversion.Segment{
		{Key: "きょうは", Value: "今日は", ContentKey: "きょう", ContentValue: "今日"},
		{Key: "はれ", Value: "晴れ"},
	}
}

func run(t *testing.T, input string) (*historyPredictor, string) {
	t.Helper()
	h := history.New(
		history.WithStorage(storage.NewMemory()),
		history.WithClock(history.NewManualClock(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))),
		history.WithLogger(log.New(io.Discard)),
	)
	t.Cleanup(h.WaitForSyncer)
	p := &historyPredictor{Predictor: h}
	var out bytes.Buffer
	handler := NewInputHandler(p, fakeSegmenter{}, 16, 5, log.New(&out))
	require.NoError(t, handler.Start(context.Background(), strings.NewReader(input)))
	return p, out.String()
}

func TestCommitAndSuggest(t *testing.T) {
	p, out := run(t, ":c わたしの 私の\n:r\nワタ\n:c なまえ 名前\n:p な\n")
	assert.Contains(t, out, "learned 1 segment(s)")
	assert.Contains(t, out, "Found 1 suggestions for 'わた'")
	assert.Contains(t, out, "私の")
	require.Len(t, p.requests, 2)
	assert.Equal(t, conversion.Suggestion, p.requests[0].Type)
	assert.Empty(t, p.requests[0].History)
	assert.Equal(t, conversion.Prediction, p.requests[1].Type)
	assert.Equal(t, []conversion.Segment{{Key: "なまえ", Value: "名前"}}, p.requests[1].History)
}

func TestUndo(t *testing.T) {
	p, out := run(t, ":u\n:c わたしの 私の\n:u\n:p わた")
	assert.Contains(t, out, "nothing to undo")
	assert.Contains(t, out, "last commit reverted")
	assert.Contains(t, out, "No suggestions found for 'わた'")
	require.Len(t, p.requests, 1)
	assert.Equal(t, conversion.Prediction, p.requests[0].Type)
	assert.Empty(t, p.requests[0].History, "undo drops the context")
}

func TestLearnForgetStats(t *testing.T) {
	p, out := run(t, ":l 今日は晴れ\n:f きょうは 今日は\n:f きょうは 京は\n:s\n")
	assert.Contains(t, out, "learned 2 segment(s)")
	assert.Contains(t, out, "forgot 今日は")
	assert.Contains(t, out, "京は is not in the history")
	assert.Contains(t, out, "learned=1")
	assert.NotNil(t, p.Lookup("きょう", "今日"))
}

func TestInvalidCommands(t *testing.T) {
	_, out := run(t, ":c わたし\n:x\n"+strings.Repeat("あ", 17)+"\n:p\n")
	assert.Contains(t, out, "usage: :c <reading> <value>")
	assert.Contains(t, out, "unknown command :x")
	assert.Contains(t, out, "invalid reading")
	assert.Contains(t, out, "usage: :p <reading>")
}

func TestFormatWithCommas(t *testing.T) {
	testCases := []struct {
		n           int
		expected    string
		description string
	}{
		{0, "0", "zero"},
		{999, "999", "below a thousand"},
		{1000, "1,000", "a thousand"},
		{1234567, "1,234,567", "millions"},
		{-20000, "-20,000", "negative"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, formatWithCommas(tc.n), tc.description)
	}
}
