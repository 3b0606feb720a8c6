package experiment

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/armtrain/pkg/agent"
	"github.com/boristopalov/armtrain/pkg/callback"
	"github.com/boristopalov/armtrain/pkg/core"
	"github.com/boristopalov/armtrain/pkg/environment"
	"github.com/boristopalov/armtrain/pkg/messaging"
)

type recordingLearner struct {
	transitions []core.Transition
	learns      int
	err         error
}

func (l *recordingLearner) Remember(t core.Transition) {
	l.transitions = append(l.transitions, t)
}

func (l *recordingLearner) Learn() error {
	l.learns++
	return l.err
}

func newVec(t *testing.T, n int) *environment.VecEnv {
	t.Helper()
	vec, err := environment.MakeVec("PointReach-v0", n, 1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { vec.Close() })
	return vec
}

func TestRunner(t *testing.T) {
	policy := agent.NewController(agent.WithNoiseSigma(0))

	t.Run("success log has one row per finished episode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "success.csv")
		logger, err := callback.NewSuccessLogger(callback.WithPath(path))
		require.NoError(t, err)

		runner, err := NewRunner(newVec(t, 2), policy,
			WithTotalTimesteps(200),
			WithCallback(logger),
		)
		require.NoError(t, err)
		require.NoError(t, runner.Run(context.Background()))

		status := runner.GetStatus()
		assert.False(t, status.Running)
		assert.Equal(t, int64(200), status.Timesteps)
		require.Greater(t, status.Episodes, 0)
		assert.Equal(t, status.Episodes, logger.Episode())

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, status.Episodes+1)
		for i, row := range rows[1:] {
			rec, err := callback.ParseRecord(row)
			require.NoError(t, err)
			assert.Equal(t, i, rec.Episode)
			assert.Equal(t, 1, rec.Success, "a noiseless controller always reaches the goal")
			assert.Equal(t, int64(0), rec.Timesteps%2, "timesteps advance by the number of envs")
		}
	})

	t.Run("callback can stop the run", func(t *testing.T) {
		calls := 0
		cb := callback.Func(func(step *core.StepContext) (bool, error) {
			calls++
			return calls < 3, nil
		})
		runner, err := NewRunner(newVec(t, 1), policy, WithTotalTimesteps(100), WithCallback(cb))
		require.NoError(t, err)
		require.NoError(t, runner.Run(context.Background()))
		assert.Equal(t, int64(3), runner.GetStatus().Timesteps)
	})

	t.Run("callback error ends the run", func(t *testing.T) {
		boom := errors.New("boom")
		cb := callback.Func(func(step *core.StepContext) (bool, error) {
			return true, boom
		})
		runner, err := NewRunner(newVec(t, 1), policy, WithTotalTimesteps(100), WithCallback(cb))
		require.NoError(t, err)
		err = runner.Run(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Len(t, runner.GetStatus().Errors, 1)
	})

	t.Run("locals carry batched infos and dones", func(t *testing.T) {
		var seen core.Locals
		cb := callback.Func(func(step *core.StepContext) (bool, error) {
			seen = step.Locals
			return true, nil
		})
		runner, err := NewRunner(newVec(t, 3), policy, WithTotalTimesteps(3), WithCallback(cb))
		require.NoError(t, err)
		require.NoError(t, runner.Run(context.Background()))

		assert.Len(t, seen[core.LocalInfos], 3)
		assert.Len(t, seen[core.LocalDones], 3)
		assert.IsType(t, []core.Info{}, seen[core.LocalInfos])
		assert.IsType(t, []bool{}, seen[core.LocalDones])
	})

	t.Run("learner sees every transition", func(t *testing.T) {
		learner := &recordingLearner{}
		runner, err := NewRunner(newVec(t, 2), policy, WithTotalTimesteps(20), WithLearner(learner))
		require.NoError(t, err)
		require.NoError(t, runner.Run(context.Background()))
		assert.Len(t, learner.transitions, 20)
		assert.Equal(t, 10, learner.learns)

		for _, tr := range learner.transitions {
			if tr.Done {
				assert.Less(t, environmentDistance(tr.NextState), 0.05, "done transitions carry the terminal state")
			}
		}
	})

	t.Run("learner error ends the run", func(t *testing.T) {
		learner := &recordingLearner{err: errors.New("diverged")}
		runner, err := NewRunner(newVec(t, 1), policy, WithTotalTimesteps(20), WithLearner(learner))
		require.NoError(t, err)
		assert.Error(t, runner.Run(context.Background()))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		runner, err := NewRunner(newVec(t, 1), policy, WithTotalTimesteps(100))
		require.NoError(t, err)
		require.ErrorIs(t, runner.Run(ctx), context.Canceled)
	})

	t.Run("episodes are published", func(t *testing.T) {
		broker := messaging.NewBroker()
		t.Cleanup(broker.Reset)
		ch := make(chan messaging.Message, 1024)
		require.NoError(t, broker.Subscribe("test", ch, messaging.TopicEpisode))

		runner, err := NewRunner(newVec(t, 1), policy, WithName("reach"), WithTotalTimesteps(100), WithBroker(broker))
		require.NoError(t, err)
		require.NoError(t, runner.Run(context.Background()))

		require.Len(t, ch, runner.GetStatus().Episodes)
		msg := <-ch
		assert.Equal(t, "reach", msg.From)
		summary, ok := msg.Content.(core.EpisodeSummary)
		require.True(t, ok)
		assert.True(t, summary.Success)
		assert.Greater(t, summary.Length, 0)
	})

	t.Run("invalid construction", func(t *testing.T) {
		_, err := NewRunner(nil, policy)
		assert.Error(t, err)
		_, err = NewRunner(newVec(t, 1), nil)
		assert.Error(t, err)
		_, err = NewRunner(newVec(t, 1), policy, WithTotalTimesteps(0))
		assert.Error(t, err)
	})
}

func environmentDistance(o core.Observation) float64 {
	var sum float64
	for i := range o.AchievedGoal {
		d := o.AchievedGoal[i] - o.DesiredGoal[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func TestEvaluate(t *testing.T) {
	env, err := environment.Make("PointReach-v0", 4)
	require.NoError(t, err)
	policy := agent.NewController(agent.WithNoiseSigma(0))

	results, err := Evaluate(context.Background(), env, policy, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, 1.0, SuccessRate(results))

	idle := agent.NewController(agent.WithGain(0), agent.WithNoiseSigma(0))
	results, err = Evaluate(context.Background(), env, idle, 2, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 5, r.Length)
		assert.False(t, r.Success)
	}
	assert.Equal(t, 0.0, SuccessRate(results))
	assert.Equal(t, 0.0, SuccessRate(nil))
}

func TestEvaluateRejectsNegativeEpisodes(t *testing.T) {
	env, err := environment.Make("PointReach-v0", 4)
	require.NoError(t, err)

	results, err := Evaluate(context.Background(), env, agent.NewController(), -1, 0)
	require.Error(t, err)
	assert.Nil(t, results)

	results, err = Evaluate(context.Background(), env, agent.NewController(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvalCallback(t *testing.T) {
	newEvalEnv := func(t *testing.T) environment.Env {
		env, err := environment.Make("PointReach-v0", 99)
		require.NoError(t, err)
		t.Cleanup(func() { env.Close() })
		return env
	}

	t.Run("stops the runner at the reward threshold and keeps the best model", func(t *testing.T) {
		policy := agent.NewController(agent.WithNoiseSigma(0), agent.WithGain(8))
		best := filepath.Join(t.TempDir(), "models", "best.yaml")
		eval, err := NewEvalCallback(context.Background(), newEvalEnv(t), policy,
			WithEvalFreq(40),
			WithEvalEpisodes(3),
			WithBestModelPath(best),
			WithRewardThreshold(-25),
		)
		require.NoError(t, err)

		logger, err := callback.NewSuccessLogger(callback.WithPath(filepath.Join(t.TempDir(), "success.csv")))
		require.NoError(t, err)

		runner, err := NewRunner(newVec(t, 2), policy,
			WithTotalTimesteps(10000),
			WithCallback(callback.List{eval, logger}),
		)
		require.NoError(t, err)
		require.NoError(t, runner.Run(context.Background()))

		status := runner.GetStatus()
		assert.Equal(t, int64(40), status.Timesteps)
		require.Len(t, eval.Evaluations(), 1)
		assert.GreaterOrEqual(t, eval.Best(), -25.0)

		saved, err := agent.Load(best)
		require.NoError(t, err)
		assert.Equal(t, 8.0, saved.Gain())
	})

	t.Run("keeps training while the threshold is out of reach", func(t *testing.T) {
		policy := agent.NewController(agent.WithNoiseSigma(0))
		eval, err := NewEvalCallback(context.Background(), newEvalEnv(t), policy,
			WithEvalFreq(50),
			WithEvalEpisodes(2),
			WithRewardThreshold(1),
		)
		require.NoError(t, err)

		runner, err := NewRunner(newVec(t, 1), policy, WithTotalTimesteps(200), WithCallback(eval))
		require.NoError(t, err)
		require.NoError(t, runner.Run(context.Background()))

		assert.Equal(t, int64(200), runner.GetStatus().Timesteps)
		evals := eval.Evaluations()
		require.Len(t, evals, 4)
		for i, ev := range evals {
			assert.Equal(t, int64(50*(i+1)), ev.Timesteps)
			assert.Equal(t, 1.0, ev.SuccessRate)
		}
	})

	t.Run("rejects bad settings", func(t *testing.T) {
		env := newEvalEnv(t)
		policy := agent.NewController()
		_, err := NewEvalCallback(context.Background(), env, policy, WithEvalFreq(0))
		assert.Error(t, err)
		_, err = NewEvalCallback(context.Background(), env, policy, WithEvalEpisodes(0))
		assert.Error(t, err)
		_, err = NewEvalCallback(context.Background(), nil, policy)
		assert.Error(t, err)

		unsaveable := struct{ core.Policy }{policy}
		_, err = NewEvalCallback(context.Background(), env, unsaveable, WithBestModelPath("best.yaml"))
		assert.Error(t, err)
	})
}
