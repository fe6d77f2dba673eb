package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bastiangx/kanaserve/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	p, _, mem := newTestPredictor(t)
	commit(p, conversionReq(), seg("わたしの", "私の"), seg("なまえは", "名前は"))
	require.NoError(t, p.Save())
	assert.Equal(t, 1, mem.Saves())
	assert.Equal(t, 1, p.Stats().Syncs)

	restored, _, _ := newTestPredictor(t, WithStorage(mem))
	stats, err := restored.Load()
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Loaded: 3}, stats)

	e := restored.Lookup("わたしの", "私の")
	require.NotNil(t, e)
	assert.True(t, e.HasNext(Fingerprint("なまえは", "名前は")))
	assert.Equal(t, p.Entries(), restored.Entries(), "recency order survives a round trip")
}

func TestLoadEmptyStorage(t *testing.T) {
	p, _, _ := newTestPredictor(t)
	stats, err := p.Load()
	require.NoError(t, err)
	assert.Zero(t, stats.Loaded)
}

func TestLoadDiscardsInvalidEntries(t *testing.T) {
	invalid := []string{
		"\xC2\xC2 ",
		"\xE0\xE0\xE0 ",
		"\xF0\xF0\xF0\xF0 ",
		"\xFF ",
		"\xFE ",
		"\xC0\xAF",
		"\xE0\x80\xAF",
		"\xEF",
		"\xBC\x91\xE5",
	}
	entries := make([]*Entry, 0, len(invalid)+2)
	for _, v := range invalid {
		entries = append(entries, &Entry{Key: "key", Value: v})
	}
	entries = append(entries, &Entry{Key: "", Value: "empty"}, &Entry{Key: "きー", Value: "キー"})
	data, err := encodeSnapshot(entries)
	require.NoError(t, err)

	p, _, mem := newTestPredictor(t)
	require.NoError(t, mem.Save(data))
	stats, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Loaded: 1, Discarded: len(invalid) + 1}, stats)
	assert.Equal(t, 1, p.Stats().Entries)
	assert.NotNil(t, p.Lookup("きー", "キー"))
}

func TestLoadRejectsCorruptSnapshot(t *testing.T) {
	p, _, mem := newTestPredictor(t)
	require.NoError(t, mem.Save([]byte("not msgpack")))
	_, err := p.Load()
	assert.Error(t, err)
}

func TestSaveFailure(t *testing.T) {
	p, _, mem := newTestPredictor(t)
	commit(p, conversionReq(), seg("わたし", "私"))

	errDisk := errors.New("disk full")
	mem.FailWith(errDisk)
	err := p.Save()
	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)
	assert.Equal(t, 1, p.Stats().SyncFailures)

	require.True(t, p.Sync())
	p.WaitForSyncer()
	assert.Equal(t, 2, p.Stats().SyncFailures)

	mem.FailWith(nil)
	require.True(t, p.Sync())
	p.WaitForSyncer()
	assert.Equal(t, 1, mem.Saves())
	assert.NotNil(t, p.Lookup("わたし", "私"), "failed saves keep the store")
}

func TestNoStorage(t *testing.T) {
	p := New(WithLogger(discardLogger()))
	assert.False(t, p.Sync())
	assert.False(t, p.Reload())
	assert.ErrorIs(t, p.Save(), ErrNoStorage)
	_, err := p.Load()
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestClearWithoutStorage(t *testing.T) {
	p := New(WithLogger(discardLogger()))
	insertEntry(p, "わたし", "私")
	assert.True(t, p.ClearUnusedHistory())
	assert.Nil(t, p.Lookup("わたし", "私"))

	insertEntry(p, "なまえ", "名前").SuggestionFreq = 1
	assert.True(t, p.ClearAllHistory())
	assert.Nil(t, p.Lookup("なまえ", "名前"))
}

func TestSyncWhileWaiting(t *testing.T) {
	p, _, mem := newTestPredictor(t)
	commit(p, conversionReq(), seg("わたし", "私"))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				p.Sync()
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				p.WaitForSyncer()
			}
		}()
	}
	wg.Wait()
	p.WaitForSyncer()

	restored, _, _ := newTestPredictor(t, WithStorage(mem))
	stats, err := restored.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Loaded)
}

func TestReload(t *testing.T) {
	p, _, mem := newTestPredictor(t)
	commit(p, conversionReq(), seg("わたし", "私"))
	require.NoError(t, p.Save())

	other, _, _ := newTestPredictor(t, WithStorage(mem))
	require.True(t, other.Reload())
	other.WaitForSyncer()
	assert.NotNil(t, other.Lookup("わたし", "私"))
}

func TestSyncToEncryptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	file := storage.NewEncryptedFile(path, "passphrase")
	file.Params = storage.KeyParams{Time: 1, Memory: 1024, Threads: 1}

	p, _, _ := newTestPredictor(t, WithStorage(file))
	commit(p, conversionReq(), seg("わたしのなまえはなかのです", "私の名前は中野です"))
	require.True(t, p.Sync())
	p.WaitForSyncer()

	reopened := storage.NewEncryptedFile(path, "passphrase")
	reopened.Params = file.Params
	restored, _, _ := newTestPredictor(t, WithStorage(reopened))
	_, err := restored.Load()
	require.NoError(t, err)
	assert.True(t, isPredicted(restored, "わたしの", "私の名前は中野です"))

	wrong := storage.NewEncryptedFile(path, "wrong")
	wrong.Params = file.Params
	_, err = New(WithStorage(wrong), WithLogger(discardLogger())).Load()
	assert.ErrorIs(t, err, storage.ErrDecrypt)
}

func TestConcurrentPredictAndLearn(t *testing.T) {
	p, _, mem := newTestPredictor(t)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("てすと%d", w*100+i)
				commit(p, conversionReq(), seg(key, key))
				p.Predict(prediction("てすと"))
				if i%10 == 0 {
					p.Sync()
				}
			}
		}(w)
	}
	wg.Wait()
	p.WaitForSyncer()
	require.NoError(t, p.Save())

	restored, _, _ := newTestPredictor(t, WithStorage(mem))
	stats, err := restored.Load()
	require.NoError(t, err)
	assert.Equal(t, 200, stats.Loaded)
}
