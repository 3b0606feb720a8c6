package experiment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aunum/log"

	"github.com/boristopalov/armtrain/pkg/callback"
	"github.com/boristopalov/armtrain/pkg/core"
	"github.com/boristopalov/armtrain/pkg/environment"
	"github.com/boristopalov/armtrain/pkg/messaging"
)

// Runner drives a vectorized environment with a policy for a fixed number
// of timesteps and reports every step to its callback.
type Runner struct {
	name           string
	env            *environment.VecEnv
	policy         core.Policy
	learner        core.Learner
	callback       core.Callback
	broker         messaging.Publisher
	totalTimesteps int64
	deterministic  bool

	episodeReward []float64
	episodeLength []int

	mu     sync.RWMutex
	status core.ExperimentStatus
}

type RunnerParams struct {
	Name           string
	TotalTimesteps int64
	Callback       core.Callback
	Learner        core.Learner
	Broker         messaging.Publisher
	Deterministic  bool
}

type RunnerOption func(*RunnerParams)

func WithName(name string) RunnerOption {
	return func(p *RunnerParams) {
		p.Name = name
	}
}

func WithTotalTimesteps(n int64) RunnerOption {
	return func(p *RunnerParams) {
		p.TotalTimesteps = n
	}
}

func WithCallback(cb core.Callback) RunnerOption {
	return func(p *RunnerParams) {
		p.Callback = cb
	}
}

func WithLearner(l core.Learner) RunnerOption {
	return func(p *RunnerParams) {
		p.Learner = l
	}
}

func WithBroker(b messaging.Publisher) RunnerOption {
	return func(p *RunnerParams) {
		p.Broker = b
	}
}

func WithDeterministic(d bool) RunnerOption {
	return func(p *RunnerParams) {
		p.Deterministic = d
	}
}

func NewRunner(env *environment.VecEnv, policy core.Policy, opts ...RunnerOption) (*Runner, error) {
	if env == nil {
		return nil, errors.New("runner needs an environment")
	}
	if policy == nil {
		return nil, errors.New("runner needs a policy")
	}
	params := &RunnerParams{Name: "run", TotalTimesteps: 1000}
	for _, opt := range opts {
		opt(params)
	}
	if params.TotalTimesteps <= 0 {
		return nil, fmt.Errorf("total timesteps must be > 0, got %d", params.TotalTimesteps)
	}

	return &Runner{
		name:           params.Name,
		env:            env,
		policy:         policy,
		learner:        params.Learner,
		callback:       params.Callback,
		broker:         params.Broker,
		totalTimesteps: params.TotalTimesteps,
		deterministic:  params.Deterministic,
		episodeReward:  make([]float64, env.NumEnvs()),
		episodeLength:  make([]int, env.NumEnvs()),
	}, nil
}

func (r *Runner) GetStatus() core.ExperimentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := r.status
	status.Errors = append([]error(nil), r.status.Errors...)
	return status
}

func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.status.Running = true
	r.status.StartTime = time.Now()
	r.mu.Unlock()

	err := r.runLoop(ctx)

	r.mu.Lock()
	r.status.Running = false
	r.status.EndTime = time.Now()
	if err != nil {
		r.status.Errors = append(r.status.Errors, err)
	}
	r.mu.Unlock()
	return err
}

func (r *Runner) runLoop(ctx context.Context) error {
	obs := r.env.Reset()
	for r.timesteps() < r.totalTimesteps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		next, cont, err := r.step(obs)
		if err != nil {
			return err
		}
		if !cont {
			log.Infof("%s: callback requested stop at %d timesteps", r.name, r.timesteps())
			return nil
		}
		obs = next
	}
	return nil
}

func (r *Runner) timesteps() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.Timesteps
}

func (r *Runner) step(obs []core.Observation) ([]core.Observation, bool, error) {
	actions := make([][]float64, len(obs))
	for i, o := range obs {
		actions[i] = r.policy.Predict(o, r.deterministic)
	}

	vs, err := r.env.Step(actions)
	if err != nil {
		return nil, false, fmt.Errorf("failed to step environment: %w", err)
	}

	r.mu.Lock()
	r.status.Timesteps += int64(len(obs))
	numTimesteps := r.status.Timesteps
	r.mu.Unlock()

	for i := range obs {
		r.episodeReward[i] += vs.Rewards[i]
		r.episodeLength[i]++

		if r.learner != nil {
			nextState := vs.Observations[i]
			if terminal, ok := vs.Infos[i][core.InfoTerminalObservation].(core.Observation); ok {
				nextState = terminal
			}
			r.learner.Remember(core.Transition{
				State:     obs[i],
				Action:    actions[i],
				Reward:    vs.Rewards[i],
				NextState: nextState,
				Done:      vs.Dones[i],
			})
		}

		if vs.Dones[i] {
			r.finishEpisode(i, vs.Infos[i], numTimesteps)
		}
	}

	cont := true
	if r.callback != nil {
		cont, err = r.callback.OnStep(&core.StepContext{
			NumTimesteps: numTimesteps,
			Locals: core.Locals{
				core.LocalInfos:   vs.Infos,
				core.LocalDones:   vs.Dones,
				core.LocalRewards: vs.Rewards,
				core.LocalActions: actions,
				core.LocalNewObs:  vs.Observations,
			},
		})
		if err != nil {
			return nil, false, fmt.Errorf("callback failed at %d timesteps: %w", numTimesteps, err)
		}
	}

	if r.learner != nil {
		if err := r.learner.Learn(); err != nil {
			return nil, false, fmt.Errorf("learner failed at %d timesteps: %w", numTimesteps, err)
		}
	}
	return vs.Observations, cont, nil
}

func (r *Runner) finishEpisode(i int, info core.Info, numTimesteps int64) {
	summary := core.EpisodeSummary{
		EnvIndex:  i,
		Reward:    r.episodeReward[i],
		Length:    r.episodeLength[i],
		Success:   callback.Truthy(info[core.InfoIsSuccess]),
		Timesteps: numTimesteps,
		EndedAt:   time.Now(),
	}
	r.episodeReward[i] = 0
	r.episodeLength[i] = 0

	r.mu.Lock()
	r.status.Episodes++
	r.mu.Unlock()

	log.Debugf("%s: env %d finished episode reward=%.3f length=%d success=%v",
		r.name, i, summary.Reward, summary.Length, summary.Success)

	if r.broker == nil {
		return
	}
	err := r.broker.Publish(messaging.Message{
		Topic:     messaging.TopicEpisode,
		From:      r.name,
		Content:   summary,
		Timestamp: summary.EndedAt,
	})
	if err != nil {
		log.Warningf("%s: failed to publish episode: %v", r.name, err)
	}
}
