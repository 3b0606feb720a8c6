package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/armtrain/pkg/core"
)

func TestController(t *testing.T) {
	obs := core.Observation{
		AchievedGoal: []float64{0, 0, 0},
		DesiredGoal:  []float64{0.05, -0.5, 0},
	}

	t.Run("deterministic action is proportional and clipped", func(t *testing.T) {
		c := NewController(WithGain(10))
		action := c.Predict(obs, true)
		assert.InDeltaSlice(t, []float64{0.5, -1, 0}, action, 1e-9)
	})

	t.Run("noise perturbs actions", func(t *testing.T) {
		c := NewController(WithGain(10), WithNoiseSigma(0.2), WithSeed(3))
		action := c.Predict(obs, false)
		assert.NotEqual(t, c.Predict(obs, true), action)
		for _, a := range action {
			assert.LessOrEqual(t, a, 1.0)
			assert.GreaterOrEqual(t, a, -1.0)
		}
	})

	t.Run("same seed same noise", func(t *testing.T) {
		a := NewController(WithNoiseSigma(0.2), WithSeed(5))
		b := NewController(WithNoiseSigma(0.2), WithSeed(5))
		assert.Equal(t, a.Predict(obs, false), b.Predict(obs, false))
	})

	t.Run("default id", func(t *testing.T) {
		c := NewController()
		assert.Contains(t, c.GetID(), "agent-")
	})
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "controller.yaml")
	c := NewController(WithAgentID("reach"), WithGain(4), WithNoiseSigma(0.15))
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "reach", loaded.GetID())
	assert.Equal(t, 4.0, loaded.Gain())
	assert.Equal(t, 0.15, loaded.NoiseSigma())

	overridden, err := Load(path, WithNoiseSigma(0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, overridden.NoiseSigma())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("gain: [1"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
