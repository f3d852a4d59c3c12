package modelfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segtok/segtok/tokenizers/api"
)

func charModel() *api.Model {
	return &api.Model{
		Algorithm: api.BPE,
		ID:        "test-model",
		Pattern:   `\S+`,
		Entries: []api.Entry{
			{Content: "a"},
			{Content: "b"},
			{Content: "</w>"},
			{Content: "ab", Score: 3},
		},
		Rules:       []api.Rule{{Left: 0, Right: 1, NewID: 3}},
		UnknownID:   -1,
		EndOfWordID: 2,
	}
}

// byteModel builds a minimal byte-level model: the 256 byte entries plus one
// merged entry holding a space, so the display rendering is observable.
func byteModel() *api.Model {
	m := &api.Model{
		Algorithm:   api.ByteBPE,
		Entries:     make([]api.Entry, 256, 257),
		UnknownID:   -1,
		EndOfWordID: -1,
	}
	for b := 0; b < 256; b++ {
		m.Entries[b] = api.Entry{Content: string([]byte{byte(b)})}
	}
	m.Entries = append(m.Entries, api.Entry{Content: " hi"})
	m.Rules = []api.Rule{{Left: ' ', Right: 'h', NewID: 256}}
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	m := charModel()

	require.NoError(t, Save(path, m))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestSaveStampsID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	m := charModel()
	m.ID = ""

	require.NoError(t, Save(path, m))
	assert.Empty(t, m.ID, "caller's model must not be modified")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.ID)

	// A second save is a distinct export and gets its own stamp.
	require.NoError(t, Save(path, m))
	again, err := Load(path)
	require.NoError(t, err)
	assert.NotEqual(t, loaded.ID, again.ID)
}

func TestSaveRejectsInvalidModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	m := charModel()
	m.Rules[0].NewID = 99

	err := Save(path, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidModel)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing should have been written")
}

func TestByteLevelDisplayRendering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	m := byteModel()
	require.NoError(t, Save(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"Ġhi"`, "space renders as the display rune")
	assert.Contains(t, text, `"Ā"`, "byte 0x00 renders as the display rune")
	assert.NotContains(t, text, "\x00", "raw control bytes never reach the file")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, " hi", loaded.Entries[256].Content)
	assert.Equal(t, "\x00", loaded.Entries[0].Content)
	assert.Equal(t, "\xff", loaded.Entries[255].Content)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, api.ErrInvalidModel)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{half a mod"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidModel)
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, Save(path, charModel()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), Version, "segtok.model/9", 1))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidModel)
	assert.Contains(t, err.Error(), "segtok.model/9")
}

func TestLoadRejectsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	doc := `{"version":"segtok.model/1","algorithm":0,"entries":[{"content":"a"},{"content":"a"}],"unknown_id":-1,"end_of_word_id":-1}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidModel)
}

func TestLoadRejectsForeignDisplayRune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, Save(path, byteModel()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := strings.Replace(string(data), `"content": "a"`, `"content": "€"`, 1)
	require.NotEqual(t, string(data), text)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidModel)
}

func TestConcurrentSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := charModel()
			m.ID = fmt.Sprintf("writer-%d", i)
			errs[i] = Save(path, m)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	// Whichever save landed last, the file is complete and well formed.
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loaded.ID, "writer-"))
	assert.Equal(t, charModel().Entries, loaded.Entries)
}
