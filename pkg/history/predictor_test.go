package history

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/storage"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Unix(1, 0)

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestPredictor(t *testing.T, opts ...Option) (*Predictor, *ManualClock, *storage.Memory) {
	t.Helper()
	clock := NewManualClock(testEpoch)
	mem := storage.NewMemory()
	base := []Option{WithClock(clock), WithStorage(mem), WithLogger(discardLogger())}
	p := New(append(base, opts...)...)
	t.Cleanup(p.WaitForSyncer)
	return p, clock, mem
}

func seg(key, value string) conversion.Segment {
	return conversion.Segment{Key: key, Value: value, ContentKey: key, ContentValue: value}
}

func request(typ conversion.RequestType, key string, history ...conversion.Segment) *conversion.Request {
	return &conversion.Request{Type: typ, Key: key, History: history}
}

func conversionReq(history ...conversion.Segment) *conversion.Request {
	return request(conversion.Conversion, "", history...)
}

func suggestion(key string, history ...conversion.Segment) *conversion.Request {
	return request(conversion.Suggestion, key, history...)
}

func prediction(key string, history ...conversion.Segment) *conversion.Request {
	return request(conversion.Prediction, key, history...)
}

func mobile(req *conversion.Request) *conversion.Request {
	req.ZeroQuerySuggestion = true
	req.MixedConversion = true
	return req
}

func commit(p *Predictor, req *conversion.Request, segments ...conversion.Segment) {
	p.Finish(req, conversion.MakeLearningResults(segments), "")
}

func commitWithID(p *Predictor, req *conversion.Request, id string, segments ...conversion.Segment) {
	p.Finish(req, conversion.MakeLearningResults(segments), id)
}

// insertEntry writes an entry straight into the store.
func insertEntry(p *Predictor, key, value string) *Entry {
	e, _ := p.store.Insert(Fingerprint(key, value))
	e.Key = key
	e.Value = value
	e.Removed = false
	e.LastAccessTime = 1
	return e
}

func appendEntry(p *Predictor, key, value string, prev *Entry) *Entry {
	prev.AddNext(Fingerprint(key, value))
	return insertEntry(p, key, value)
}

func values(results []conversion.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Value)
	}
	return out
}

func firstValue(t *testing.T, results []conversion.Result) string {
	t.Helper()
	require.NotEmpty(t, results)
	return results[0].Value
}

func isSuggested(p *Predictor, key, value string) bool {
	for _, r := range p.Predict(suggestion(key)) {
		if r.Value == value {
			return true
		}
	}
	return false
}

func isPredicted(p *Predictor, key, value string) bool {
	for _, r := range p.Predict(prediction(key)) {
		if r.Value == value {
			return true
		}
	}
	return false
}

type suppressDict struct{}

func (suppressDict) IsSuppressedEntry(key, value string) bool {
	return key == "foo" && value == "bar"
}

type stubCorrector struct {
	queries []conversion.TypeCorrectedQuery
}

func (s stubCorrector) CorrectComposition(*conversion.Request) []conversion.TypeCorrectedQuery {
	return s.queries
}

func TestPredictorLearnsCommits(t *testing.T) {
	const key, value = "わたしのなまえはなかのです", "私の名前は中野です"

	p, _, mem := newTestPredictor(t)
	assert.Empty(t, p.Predict(suggestion("わたしの")))

	commit(p, suggestion(""), seg(key, value))
	assert.Equal(t, value, firstValue(t, p.Predict(suggestion("わたしの"))))
	assert.Equal(t, value, firstValue(t, p.Predict(suggestion(key))))
	assert.Empty(t, p.Predict(suggestion("なかの")))

	incognito := suggestion("わたしの")
	incognito.Incognito = true
	assert.Empty(t, p.Predict(incognito))

	noSuggest := suggestion("わたしの")
	noSuggest.NoHistorySuggest = true
	assert.Empty(t, p.Predict(noSuggest))

	require.NoError(t, p.Save())
	restored, _, _ := newTestPredictor(t, WithStorage(mem))
	stats, err := restored.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Loaded)
	assert.Equal(t, value, firstValue(t, restored.Predict(suggestion("わたしの"))))

	p.ClearAllHistory()
	p.WaitForSyncer()
	assert.Empty(t, p.Predict(suggestion("わたしの")))
}

func TestPredictorLearningLevels(t *testing.T) {
	testCases := []struct {
		level       conversion.LearningLevel
		incognito   bool
		learned     bool
		description string
	}{
		{conversion.DefaultHistory, false, true, "default"},
		{conversion.ReadOnlyHistory, false, false, "read only"},
		{conversion.NoHistory, false, false, "no history"},
		{conversion.DefaultHistory, true, false, "incognito"},
	}
	for _, tc := range testCases {
		p, _, _ := newTestPredictor(t)
		req := suggestion("")
		req.Learning = tc.level
		req.Incognito = tc.incognito
		commit(p, req, seg("わたしのなまえはなかのです", "私の名前は中野です"))
		assert.Equal(t, tc.learned, p.Lookup("わたしのなまえはなかのです", "私の名前は中野です") != nil, tc.description)
	}
}

func TestUnselectedCandidatesAreRemoved(t *testing.T) {
	const key = "わたしの"
	const target, other = "私の", "渡しの"

	p, _, _ := newTestPredictor(t)
	finish := func(value string) {
		req := mobile(prediction(key))
		results := []conversion.Result{{Key: key, Value: value}}
		results = append(results, p.Predict(req)...)
		p.Finish(req, results, "")
	}
	visible := func() bool {
		for _, r := range p.Predict(mobile(prediction(key))) {
			if r.Value == target {
				return true
			}
		}
		return false
	}

	finish(target)
	for i := 0; i < 19; i++ {
		finish(other)
	}
	assert.True(t, visible(), "picked 1 of 20")
	finish(other)
	assert.False(t, visible(), "picked 1 of 21")

	// picking it again starts over
	finish(target)
	assert.True(t, visible())
	e := p.Lookup(key, target)
	require.NotNil(t, e)
	assert.Equal(t, uint32(1), e.SuggestionFreq)
	assert.Equal(t, uint32(1), e.ShownFreq)

	finish(target)
	for i := 0; i < 38; i++ {
		finish(other)
	}
	assert.True(t, visible(), "picked 2 of 40")
	finish(other)
	assert.False(t, visible(), "picked 2 of 41")

	p.Revert("")
	assert.True(t, visible())
}

func TestPredictorSegmentsAndWhole(t *testing.T) {
	p, _, _ := newTestPredictor(t)
	commit(p, suggestion(""), seg("かまた", "火魔汰"), seg("ま", "摩"))
	assert.ElementsMatch(t, []string{"火魔汰", "火魔汰摩"}, values(p.Predict(suggestion("かま"))))
}

func TestTrailingSpaceIsTrimmed(t *testing.T) {
	p, _, _ := newTestPredictor(t)
	commit(p, conversionReq(), seg("android ", "android "))
	assert.NotNil(t, p.Lookup("android", "android"))
	assert.Nil(t, p.Lookup("android ", "android "))
}

func TestClearUnusedHistory(t *testing.T) {
	p, _, _ := newTestPredictor(t)
	commit(p, suggestion(""), seg("わたしのなまえはなかのです", "私の名前は中野です"))
	commit(p, conversionReq(), seg("ひろすえりょうこ", "広末涼子"))
	assert.NotEmpty(t, p.Predict(prediction("ひろすえ")))

	require.True(t, p.ClearUnusedHistory())
	p.WaitForSyncer()
	assert.Empty(t, p.Predict(prediction("ひろすえ")))
	assert.NotEmpty(t, p.Predict(prediction("わたしの")))
}

func TestRevert(t *testing.T) {
	t.Run("single commit", func(t *testing.T) {
		p, _, _ := newTestPredictor(t)
		commitWithID(p, suggestion(""), "r1", seg("わたしのなまえはなかのです", "私の名前は中野です"))
		require.NotEmpty(t, p.Predict(suggestion("わたしの")))
		p.Revert("r1")
		assert.Empty(t, p.Predict(suggestion("わたしの")))
		assert.Nil(t, p.Lookup("わたしのなまえはなかのです", "私の名前は中野です"))
		assert.Equal(t, 1, p.Stats().Reverted)
	})

	t.Run("frequencies", func(t *testing.T) {
		p, _, _ := newTestPredictor(t)
		for _, id := range []string{"1", "2", "3"} {
			commitWithID(p, conversionReq(), id, seg("わたし", "私"))
		}
		for _, tc := range []struct {
			id   string
			freq uint32
		}{{"3", 2}, {"2", 1}} {
			p.Revert(tc.id)
			e := p.Lookup("わたし", "私")
			require.NotNil(t, e)
			assert.Equal(t, tc.freq, e.ConversionFreq)
		}
		p.Revert("1")
		assert.Nil(t, p.Lookup("わたし", "私"))
	})

	t.Run("links", func(t *testing.T) {
		p, _, _ := newTestPredictor(t)
		commit(p, conversionReq(), seg("わたしの", "私の"))
		commitWithID(p, conversionReq(seg("わたしの", "私の")), "link", seg("なまえは", "名前は"))
		require.True(t, p.Lookup("わたしの", "私の").HasNext(Fingerprint("なまえは", "名前は")))
		p.Revert("link")
		e := p.Lookup("わたしの", "私の")
		require.NotNil(t, e)
		assert.Empty(t, e.NextEntries)
	})

	t.Run("unknown id", func(t *testing.T) {
		p, _, _ := newTestPredictor(t)
		commit(p, conversionReq(), seg("わたし", "私"))
		p.Revert("missing")
		assert.NotNil(t, p.Lookup("わたし", "私"))
	})
}

func TestClearAllHistoryThenRelearn(t *testing.T) {
	p, _, _ := newTestPredictor(t)
	for i := 0; i < 10; i++ {
		commit(p, conversionReq(), seg("testtest", "テストテスト"))
	}
	p.ClearAllHistory()
	p.WaitForSyncer()
	commit(p, conversionReq(), seg("testtest", "テストテスト"))

	assert.Empty(t, p.Predict(suggestion("t")))
	assert.NotEmpty(t, p.Predict(suggestion("testte")))
}

func TestEntriesMaxTrialSize(t *testing.T) {
	for _, trial := range []int{10, 20} {
		p, _, _ := newTestPredictor(t, WithLimits(Limits{MaxSuggestionTrial: trial}))
		for i := 0; i < 30; i++ {
			commit(p, conversionReq(), seg(fmt.Sprintf("わたしのなまえ%2d", i), fmt.Sprintf("私の名前%2d", i)))
		}
		for i := 29; i >= 0; i-- {
			found := isPredicted(p, fmt.Sprintf("わたしのなまえ%2d", i), fmt.Sprintf("私の名前%2d", i))
			assert.Equal(t, 29-i < trial, found, "trial %d entry %d", trial, i)
		}
	}
}

func TestSyncPrunesEntries(t *testing.T) {
	t.Run("cache size", func(t *testing.T) {
		for _, limit := range []int{10, 20, 30, 40} {
			p, _, _ := newTestPredictor(t, WithLimits(Limits{CacheStoreSize: limit}))
			for i := 0; i < 50; i++ {
				commit(p, conversionReq(), seg(fmt.Sprintf("わたしのなまえ%d", i), fmt.Sprintf("私の名前%d", i)))
			}
			require.NoError(t, p.Save())
			for i := 0; i < 50; i++ {
				found := p.Lookup(fmt.Sprintf("わたしのなまえ%d", i), fmt.Sprintf("私の名前%d", i)) != nil
				assert.Equal(t, i >= 50-limit, found, "limit %d entry %d", limit, i)
			}
		}
	})

	t.Run("lifetime", func(t *testing.T) {
		for _, days := range []int{10, 20, 30, 40} {
			p, clock, _ := newTestPredictor(t, WithLimits(Limits{EntryLifetimeDays: days}))
			for i := 0; i < 50; i++ {
				commit(p, conversionReq(), seg(fmt.Sprintf("わたしのなまえ%d", i), fmt.Sprintf("私の名前%d", i)))
				clock.Advance(24 * time.Hour)
			}
			require.NoError(t, p.Save())
			for i := 0; i < 50; i++ {
				found := p.Lookup(fmt.Sprintf("わたしのなまえ%d", i), fmt.Sprintf("私の名前%d", i)) != nil
				assert.Equal(t, i >= 50-days, found, "lifetime %d entry %d", days, i)
			}
		}
	})

	t.Run("zero limits fall back to defaults", func(t *testing.T) {
		p, _, _ := newTestPredictor(t, WithCapacity(100))
		p.SetLimits(Limits{})
		l := p.Limits()
		assert.Equal(t, DefaultEntryLifetimeDays, l.EntryLifetimeDays)
		assert.Equal(t, 100, l.CacheStoreSize)
		assert.Equal(t, DefaultMaxPredictionCandidates, l.MaxPredictionCandidates)
	})
}

func TestExpiredEntriesStayUntilSync(t *testing.T) {
	p, clock, _ := newTestPredictor(t)
	commit(p, conversionReq(), seg("なかのです", "中野です"))
	assert.True(t, isPredicted(p, "なかの", "中野です"))

	clock.Advance(63 * 24 * time.Hour)
	commit(p, conversionReq(), seg("たかはしです", "高橋です"))
	assert.True(t, isPredicted(p, "なかの", "中野です"))
	assert.True(t, isPredicted(p, "たかはし", "高橋です"))

	require.True(t, p.Sync())
	p.WaitForSyncer()
	assert.False(t, isPredicted(p, "なかの", "中野です"))
	assert.True(t, isPredicted(p, "たかはし", "高橋です"))
	entries := p.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "高橋です", entries[0].Value)
}

func TestFutureTimestamp(t *testing.T) {
	p, clock, _ := newTestPredictor(t)
	clock.Set(testEpoch.Add(1000 * time.Hour))
	commit(p, conversionReq(), seg("わたしのなまえはなかのです", "私の名前は中野です"))
	clock.Set(testEpoch)
	assert.True(t, isPredicted(p, "わたしの", "私の名前は中野です"))
	require.NoError(t, p.Save())
	assert.True(t, isPredicted(p, "わたしの", "私の名前は中野です"))
}

func TestMaxPredictionCandidates(t *testing.T) {
	testCases := []struct {
		limit, expected int
	}{
		{2, 2}, {3, 3}, {4, 3},
	}
	for _, tc := range testCases {
		p, _, _ := newTestPredictor(t, WithLimits(Limits{MaxPredictionCandidates: tc.limit}))
		for _, v := range []string{"てすと", "テスト", "Test"} {
			commit(p, prediction(""), seg("てすと", v))
		}
		assert.Len(t, p.Predict(suggestion("てすと")), tc.expected, "suggestion limit %d", tc.limit)
		assert.Len(t, p.Predict(prediction("てすと")), tc.expected, "prediction limit %d", tc.limit)
	}
}

func TestMaxZeroQueryCandidates(t *testing.T) {
	p, _, _ := newTestPredictor(t, WithLimits(Limits{MaxPredictionCandidates: 2, MaxZeroQueryCandidates: 3}))
	history := seg("てすと", "てすと")
	commit(p, mobile(prediction("")), history)
	for _, v := range []string{"😀", "😎", "😂"} {
		commit(p, mobile(prediction("", history)), seg("かお", v))
	}
	assert.Len(t, p.Predict(mobile(prediction("かお"))), 2)
	assert.Len(t, p.Predict(mobile(suggestion("", history))), 3)
}

func TestTypingCorrection(t *testing.T) {
	learn := func(p *Predictor, clock *ManualClock) {
		for _, s := range []conversion.Segment{
			seg("がっこう", "学校"),
			seg("がっこう", "ガッコウ"),
			seg("かっこう", "格好"),
		} {
			commit(p, prediction(""), s)
			clock.Advance(time.Hour)
		}
	}
	corrector := stubCorrector{queries: []conversion.TypeCorrectedQuery{
		{Correction: "がっこ", Score: 0.9},
		{Correction: "かっこ", Score: 0.5},
	}}

	p, clock, _ := newTestPredictor(t, WithLimits(Limits{TypingCorrectionSize: 1}))
	learn(p, clock)
	assert.NotEmpty(t, p.Predict(prediction("がっこ")))
	assert.Empty(t, p.Predict(prediction("かつこ")), "no corrector")

	testCases := []struct {
		size     int
		expected []string
	}{
		{0, nil},
		{1, []string{"ガッコウ", "学校"}},
		{2, []string{"格好", "ガッコウ", "学校"}},
	}
	for _, tc := range testCases {
		p, clock, _ := newTestPredictor(t, WithTypingCorrector(corrector), WithLimits(Limits{TypingCorrectionSize: tc.size}))
		learn(p, clock)
		results := p.Predict(prediction("かつこ"))
		if tc.expected == nil {
			assert.Empty(t, results, "size %d", tc.size)
			continue
		}
		assert.Equal(t, tc.expected, values(results), "size %d", tc.size)
		for _, r := range results {
			assert.NotZero(t, r.Types&conversion.TypingCorrection)
		}
	}
}

func TestMaxCharCoverage(t *testing.T) {
	testCases := []struct {
		coverage, expected int
	}{
		{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1},
		{6, 2}, {7, 2}, {8, 2}, {9, 2},
		{10, 3}, {11, 3},
	}
	for _, tc := range testCases {
		p, _, _ := newTestPredictor(t, WithLimits(Limits{MaxPredictionCandidates: 3, MaxCharCoverage: tc.coverage}))
		for _, v := range []string{"てすと", "テスト", "Test"} {
			commit(p, prediction(""), seg("てすと", v))
		}
		assert.Len(t, p.Predict(prediction("てすと")), tc.expected, "coverage %d", tc.coverage)
	}
}

func TestRemoveRedundantCandidates(t *testing.T) {
	testCases := []struct {
		candidates  []string
		expected    []string
		description string
	}{
		{[]string{"東京は", "東京", "大阪", "大阪は"}, []string{"東京", "大阪"}, "longer first"},
		{[]string{"東京", "東京は", "大阪は", "大阪"}, []string{"東京", "大阪"}, "mixed order"},
		{[]string{"東京は", "東京", "大阪", "大阪駅"}, []string{"東京", "大阪", "大阪駅"}, "kanji suffix is kept"},
		{[]string{"東京", "東京は", "大阪駅", "大阪"}, []string{"東京", "大阪駅", "大阪"}, "kanji suffix is kept 2"},
	}
	for _, tc := range testCases {
		p, clock, _ := newTestPredictor(t, WithLimits(Limits{MaxPredictionCandidates: 10}))
		for i := len(tc.candidates) - 1; i >= 0; i-- {
			commit(p, prediction(""), seg("とうきょう", tc.candidates[i]))
			clock.Advance(time.Hour)
		}
		assert.Equal(t, tc.expected, values(p.Predict(prediction("とうき"))), tc.description)
	}
}

func TestPrivacySensitive(t *testing.T) {
	one := func(key, value string) []conversion.Segment {
		return []conversion.Segment{seg(key, value)}
	}
	testCases := []struct {
		segments    []conversion.Segment
		sensitive   bool
		description string
	}{
		{one("0007", "０００７"), false, "digits committed full width"},
		{one("100-0001", "東京都千代田区千代田"), false, "zip code"},
		{one("1111-1111", "1111－1111"), false, "digits with a full width dash"},
		{one("かーどばんごう", "0000-0000-0000-0000"), false, "card number from the user dictionary"},
		{one("かーどばんごう", "0000000000000000"), false, "bare card number from the user dictionary"},
		{one("ぱすわーど", "ywwz1sxm"), false, "password from the user dictionary"},
		{one("いあ1ぼ3ぅ", "ia1bo3xu"), false, "roman input converted to ascii"},
		{one("おれんじ", "Orange"), false, "katakana transliterated to english"},
		{one("おらんげ", "orange"), false, "english word typed in roman mode"},
		{one("123abc!", "123abc!"), false, "password like text"},
		{one("yっwz1sxm", "ywwz1sxm"), false, "roman input with unconsumed letters"},
		{one("variable", "variable"), false, "lower case word"},
		{one("VARIABLE", "VARIABLE"), false, "upper case word"},
		{one("Variable", "Variable"), false, "capitalized word"},
		{one("vArIaBle", "vArIaBle"), false, "random capitalization"},
		{one("upper", "upper"), false, "lower case of an upper case entry"},
		{one("2398402938402934", "2398402938402934"), true, "raw digits"},
		{one("Orange10000", "Orange10000"), false, "word with a number suffix"},
		{one("2398402938402934", "２３９８４０２９３８４０２９３４"), false, "converted digits"},
		{one("せんにひゃくさんじゅうよん", "千二百三十四"), false, "kanji number"},
		{[]conversion.Segment{seg("123", "123"), seg("abc!", "abc!")}, false, "multiple segments"},
	}
	for _, tc := range testCases {
		p, _, _ := newTestPredictor(t)
		commit(p, conversionReq(), tc.segments...)
		r := conversion.MakeLearningResults(tc.segments)[0]
		learned := p.Lookup(r.Key, r.Value) != nil
		assert.Equal(t, !tc.sensitive, learned, tc.description)
		assert.Equal(t, !tc.sensitive, isPredicted(p, r.Key, r.Value), tc.description)

		runes := []rune(r.Key)
		partial := string(runes[:len(runes)-1])
		assert.Equal(t, !tc.sensitive, len(p.Predict(prediction(partial))) > 0, "%s: partial input", tc.description)
	}
}

func TestIsValidEntry(t *testing.T) {
	p, _, _ := newTestPredictor(t, WithUserDictionary(suppressDict{}))

	assert.False(t, p.IsValidEntry(nil))
	assert.True(t, p.IsValidEntry(&Entry{Key: "key", Value: "value"}))
	assert.False(t, p.IsValidEntry(&Entry{Key: "key", Value: "value", Removed: true}))
	assert.True(t, p.IsValidEntryIgnoringRemovedField(&Entry{Key: "key", Value: "value", Removed: true}))
	assert.False(t, p.IsValidEntry(&Entry{Key: "key", Value: "\U000FE000"}), "obsolete emoji")
	assert.False(t, p.IsValidEntry(&Entry{Key: "foo", Value: "bar"}), "suppressed")
	assert.True(t, p.IsValidEntry(&Entry{Key: "foo", Value: "baz"}))
}

func TestIsValidSuggestion(t *testing.T) {
	req := suggestion("")
	assert.False(t, IsValidSuggestion(req, 1, &Entry{}))
	assert.True(t, IsValidSuggestion(req, 1, &Entry{BigramBoost: true}))
	assert.True(t, IsValidSuggestion(req, 1, &Entry{ConversionFreq: 10}))
	assert.True(t, IsValidSuggestion(req, 2, &Entry{SuggestionFreq: 1}))
	assert.False(t, IsValidSuggestion(req, 1, &Entry{SuggestionFreq: 1}))

	zeroQuery := suggestion("")
	zeroQuery.ZeroQuerySuggestion = true
	assert.True(t, IsValidSuggestion(zeroQuery, 1, &Entry{}))

	assert.True(t, IsValidSuggestionForMixedConversion(&Entry{Value: "よろしく", SuggestionFreq: 1}))
	assert.False(t, IsValidSuggestionForMixedConversion(&Entry{Value: "よろしくおねがいします。", SuggestionFreq: 1}))
	assert.True(t, IsValidSuggestionForMixedConversion(&Entry{Value: "よろしくおねがいします。", SuggestionFreq: 2}))
}

func TestLongCandidateForMobile(t *testing.T) {
	p, _, _ := newTestPredictor(t)
	found := func() bool {
		for _, r := range p.Predict(mobile(prediction("よろ"))) {
			if r.Value == "よろしくお願いします" {
				return true
			}
		}
		return false
	}
	commit(p, mobile(prediction("")), seg("よろしくおねがいします", "よろしくお願いします"))
	assert.False(t, found(), "picked once")
	for i := 0; i < 2; i++ {
		commit(p, mobile(prediction("")), seg("よろしくおねがいします", "よろしくお願いします"))
	}
	assert.True(t, found())
}

func TestResultAttributes(t *testing.T) {
	p, _, _ := newTestPredictor(t)
	commit(p, conversionReq(), seg("わたしの", "私の"))
	commit(p, conversionReq(seg("わたしの", "私の")), seg("なまえは", "名前は"))

	results := p.Predict(prediction("わた"))
	require.NotEmpty(t, results)
	r := results[0]
	assert.NotZero(t, r.Types&conversion.History)
	assert.NotZero(t, r.CandidateAttributes&conversion.AttrUserHistoryPrediction)

	zq := suggestion("", seg("わたしの", "私の"))
	zq.ZeroQuerySuggestion = true
	results = p.Predict(zq)
	require.NotEmpty(t, results)
	assert.Equal(t, "名前は", results[0].Value)
	assert.NotZero(t, results[0].Types&conversion.Bigram)

	debug := prediction("わた")
	debug.Debug = true
	results = p.Predict(debug)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Description, "History")
}
