package runs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Run("start and finish", func(t *testing.T) {
		s := openStore(t)
		run := &Run{Name: "reach", EnvID: "PointReach-v0", NumEnvs: 2, SuccessLog: "logs/success_reach.csv"}
		require.NoError(t, s.Start(run))
		assert.NotEmpty(t, run.ID)

		got, err := s.Get(run.ID)
		require.NoError(t, err)
		assert.Equal(t, "reach", got.Name)
		assert.Equal(t, 2, got.NumEnvs)
		assert.Nil(t, got.FinishedAt)
		assert.Nil(t, got.Result)
		assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Millisecond)

		require.NoError(t, s.Finish(run.ID, Result{Timesteps: 400, Episodes: 30, Successes: 27, SuccessRate: 0.9}))
		got, err = s.Get(run.ID)
		require.NoError(t, err)
		require.NotNil(t, got.FinishedAt)
		require.NotNil(t, got.Result)
		assert.Equal(t, int64(400), got.Result.Timesteps)
		assert.Equal(t, 27, got.Result.Successes)
		assert.InDelta(t, 0.9, got.Result.SuccessRate, 1e-9)
	})

	t.Run("unknown run", func(t *testing.T) {
		s := openStore(t)
		_, err := s.Get("missing")
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, s.Finish("missing", Result{}), ErrNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		s := openStore(t)
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, s.Start(&Run{ID: "old", Name: "a", EnvID: "PointReach-v0", NumEnvs: 1, StartedAt: base}))
		require.NoError(t, s.Start(&Run{ID: "new", Name: "b", EnvID: "PointReach-v0", NumEnvs: 1, StartedAt: base.Add(time.Hour)}))

		list, err := s.List()
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "new", list[0].ID)
		assert.Equal(t, "old", list[1].ID)
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := openStore(t)
		require.NoError(t, s.Start(&Run{ID: "x", Name: "a", EnvID: "e", NumEnvs: 1}))
		assert.Error(t, s.Start(&Run{ID: "x", Name: "a", EnvID: "e", NumEnvs: 1}))
	})
}
