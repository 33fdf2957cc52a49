package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel-jacob-pearson/moosic/internal/store"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_state")

	s := store.New()
	s.Queue = [][]byte{[]byte("/m/a.mp3"), {0xff, 0xfe, 0x00, 0x01}} // second entry is not valid UTF-8
	s.QueueRunning = false
	s.LoopMode = true
	s.MaxHistory = 7
	s.RecordHistory([]byte("/m/old.ogg"), 100.5, 160.25)

	require.NoError(t, Save(s, path))

	restored := store.New()
	loaded, err := Load(restored, path)
	require.NoError(t, err)
	require.True(t, loaded)

	assert.Equal(t, s.Queue, restored.Queue)
	assert.False(t, restored.QueueRunning)
	assert.True(t, restored.LoopMode)
	assert.Equal(t, 7, restored.MaxHistory)
	require.Len(t, restored.History, 1)
	assert.Equal(t, []byte("/m/old.ogg"), restored.History[0].Item)
	assert.Equal(t, 100.5, restored.History[0].Started)
	assert.Equal(t, 160.25, restored.History[0].Finished)
}

func TestSavePrependsCurrentWhileRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_state")

	s := store.New()
	s.Queue = [][]byte{[]byte("/m/b.mp3")}
	s.Current = []byte("/m/now.mp3")
	require.NoError(t, Save(s, path))

	restored := store.New()
	_, err := Load(restored, path)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("/m/now.mp3"), []byte("/m/b.mp3")}, restored.Queue)
}

func TestSaveSkipsCurrentWhenHalted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_state")

	s := store.New()
	s.Queue = [][]byte{[]byte("/m/b.mp3")}
	s.Current = []byte("/m/now.mp3")
	s.QueueRunning = false
	require.NoError(t, Save(s, path))

	restored := store.New()
	_, err := Load(restored, path)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("/m/b.mp3")}, restored.Queue)
}

func TestLoadMissingFile(t *testing.T) {
	s := store.New()
	loaded, err := Load(s, filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestLoadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_state")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml: ["), 0o600))
	s := store.New()
	_, err := Load(s, path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_state")
	require.NoError(t, os.WriteFile(path, []byte("version: 99\nqueue: []\n"), 0o600))
	s := store.New()
	_, err := Load(s, path)
	assert.Error(t, err)
}
