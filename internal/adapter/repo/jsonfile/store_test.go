package jsonfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
	"github.com/fairyhunter13/textgen-horde/internal/usecase"
)

func sampleSnapshot() usecase.Snapshot {
	now := time.Date(2023, 1, 10, 12, 0, 0, 0, time.Local)
	user := domain.NewUser(now, 1, "alice", "oauth-alice", "key-alice", "")
	user.ModifyKudos(42.5, domain.KudosAccumulated)
	worker := domain.NewWorker(user, "alice-rig")
	worker.CheckIn(now, "EleutherAI/gpt-neo-2.7B", 512, 2048, []string{"surreal"}, 2.7)
	stats := domain.NewStats(now)
	stats.SetMultiplier("EleutherAI/gpt-neo-2.7B", 2.7)
	stats.RecordFulfilment(now.Add(4*time.Second), 80, now)
	return usecase.Snapshot{
		Users:   []domain.UserRecord{user.Record()},
		Workers: []domain.WorkerRecord{worker.Record()},
		Stats:   stats.Record(),
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := New(filepath.Join(dir, "db"))

	require.NoError(t, store.Save(sampleSnapshot()))

	for _, name := range []string{"users.json", "servers.json", "stats.json"} {
		_, err := os.Stat(filepath.Join(dir, "db", name))
		assert.NoErrorf(t, err, "expected %s to exist", name)
	}

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Users, 1)
	assert.Equal(t, "alice", loaded.Users[0].Username)
	assert.InDelta(t, 42.5, loaded.Users[0].Kudos, 1e-9)
	require.Len(t, loaded.Workers, 1)
	assert.Equal(t, "alice-rig", loaded.Workers[0].Name)
	assert.Equal(t, []string{"surreal"}, loaded.Workers[0].Softprompts)
	assert.Equal(t, []float64{20}, loaded.Stats.ServerPerformances)
	assert.Equal(t, map[string]float64{"EleutherAI/gpt-neo-2.7B": 2.7}, loaded.Stats.ModelMultipliers)
}

func TestStore_LoadMissingDirectory(t *testing.T) {
	t.Parallel()
	store := New(filepath.Join(t.TempDir(), "never-created"))
	snap, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Users)
	assert.Empty(t, snap.Workers)
	assert.Empty(t, snap.Stats.ServerPerformances)
}

func TestStore_LoadCorruptFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte("{truncated"), 0o600))
	_, err := New(dir).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestStore_HistoricalKeysOnDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := New(dir)
	require.NoError(t, store.Save(sampleSnapshot()))

	raw, err := os.ReadFile(filepath.Join(dir, "stats.json"))
	require.NoError(t, err)
	// The multiplier map keeps its historical key spelling.
	assert.Contains(t, string(raw), `"model_mulitpliers"`)
	assert.NotContains(t, string(raw), `"fulfilment_times"`)

	raw, err = os.ReadFile(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"max_concurrent_wps"`)
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := New(dir)
	require.NoError(t, store.Save(sampleSnapshot()))
	require.NoError(t, store.Save(sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"users.json", "servers.json", "stats.json"}, names)
}
