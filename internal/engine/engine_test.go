package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bastiangx/kanaserve/pkg/config"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/dictionary"
	"github.com/bastiangx/kanaserve/pkg/history"
	"github.com/bastiangx/kanaserve/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(results []conversion.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out
}

func newEngine(t *testing.T, cfg *config.Config, paths Paths) (*Engine, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	e, err := New(cfg, paths,
		WithStorage(mem),
		WithClock(history.NewManualClock(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))),
		WithRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, mem
}

func writeDictionary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	tokens := []dictionary.Token{
		{Key: "かった", Value: "買った", Lid: 1, Rid: 1, Cost: 1000},
		{Key: "かった", Value: "勝った", Lid: 1, Rid: 1, Cost: 1500},
		{Key: "かったー", Value: "カッター", Lid: 1, Rid: 1, Cost: 2500},
	}
	_, err := dictionary.WriteChunks(dir, tokens, 2)
	require.NoError(t, err)
	return dir
}

func learn(e *Engine, key, value string) {
	req := &conversion.Request{Type: conversion.Prediction}
	e.Predictor.Finish(req, conversion.MakeLearningResults([]conversion.Segment{{Key: key, Value: value}}), "")
}

func TestNewWithDictionary(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Mode = "mixed"
	e, _ := newEngine(t, cfg, Paths{DataDir: writeDictionary(t)})

	require.NotNil(t, e.Reranker)
	assert.Len(t, e.Dictionary.GetLoadedIDs(), 2)
	assert.Equal(t, "mixed", e.Predictor.Mode().String())

	results, err := e.Predictor.Predict(context.Background(), &conversion.Request{Type: conversion.Prediction, Key: "かった"})
	require.NoError(t, err)
	assert.Contains(t, values(results), "買った")
	assert.Contains(t, values(results), "カッター")
}

func TestMaxWordsLimitsChunks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dict.MaxWords = 1
	e, _ := newEngine(t, cfg, Paths{DataDir: writeDictionary(t)})
	assert.Equal(t, []int{1}, e.Dictionary.GetLoadedIDs())
}

func TestNewWithoutDictionary(t *testing.T) {
	e, mem := newEngine(t, config.DefaultConfig(), Paths{DataDir: t.TempDir()})
	assert.Nil(t, e.Reranker)
	assert.Equal(t, "desktop", e.Predictor.Mode().String())

	learn(e, "わたしの", "私の")
	results, err := e.Predictor.Predict(context.Background(), &conversion.Request{Type: conversion.Suggestion, Key: "わた"})
	require.NoError(t, err)
	assert.Equal(t, []string{"私の"}, values(results))

	require.NoError(t, e.Close())
	assert.Positive(t, mem.Saves())
}

func TestUserDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_dictionary.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
words:
  - key: きゃらめる
    value: キャラメル
suppress:
  - key: わたしの
    value: 渡しの
`), 0o644))

	cfg := config.DefaultConfig()
	cfg.Server.Mode = "mixed"
	e, _ := newEngine(t, cfg, Paths{DataDir: t.TempDir(), UserDictionary: path})
	require.NotNil(t, e.Reranker, "user words alone enable the dictionary")

	results, err := e.Predictor.Predict(context.Background(), &conversion.Request{Type: conversion.Prediction, Key: "きゃらめ"})
	require.NoError(t, err)
	assert.Contains(t, values(results), "キャラメル")

	learn(e, "わたしの", "渡しの")
	results, err = e.Predictor.Predict(context.Background(), &conversion.Request{Type: conversion.Prediction, Key: "わたし"})
	require.NoError(t, err)
	assert.NotContains(t, values(results), "渡しの")
}

func TestApplyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_dictionary.yaml")
	cfg := config.DefaultConfig()
	cfg.Server.Mode = "mixed"
	e, _ := newEngine(t, cfg, Paths{DataDir: writeDictionary(t), UserDictionary: path})

	next := config.DefaultConfig()
	next.Server.Mode = "mixed"
	next.History.MaxPredictionCandidates = 9
	next.Prediction.ConsistencyMaxCostDiff = 1200
	require.NoError(t, os.WriteFile(path, []byte("bad_suggestions: [勝った]\n"), 0o644))
	e.ApplyConfig(next)

	assert.Equal(t, 9, e.History.Limits().MaxPredictionCandidates)
	assert.Equal(t, 1200, e.Reranker.Settings().ConsistencyMaxCostDiff)
	assert.True(t, e.UserDict.IsBadSuggestion("勝った"))
	assert.Same(t, next, e.Config())

	e.ApplyConfig(nil)
	assert.Same(t, next, e.Config(), "nil config is ignored")
}

func TestNewRefusesUnreadableHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, storage.NewEncryptedFile(path, "right").Save([]byte("x")))

	_, err := New(config.DefaultConfig(), Paths{DataDir: t.TempDir()},
		WithStorage(storage.NewEncryptedFile(path, "wrong")),
		WithRegistry(prometheus.NewRegistry()))
	assert.ErrorIs(t, err, storage.ErrDecrypt)
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, Paths{})
	assert.Error(t, err)
}
