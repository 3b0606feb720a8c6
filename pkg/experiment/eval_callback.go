package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aunum/log"
	"gonum.org/v1/gonum/stat"

	"github.com/boristopalov/armtrain/pkg/core"
	"github.com/boristopalov/armtrain/pkg/environment"
)

// Saver is implemented by policies that can be written to disk.
type Saver interface {
	Save(path string) error
}

// Evaluation is the outcome of one periodic evaluation.
type Evaluation struct {
	Timesteps   int64
	MeanReward  float64
	StdReward   float64
	SuccessRate float64
}

// EvalCallback evaluates the policy on a separate environment every N
// timesteps. It keeps the best policy seen so far and asks the runner to
// stop once a new best mean reward reaches the threshold.
type EvalCallback struct {
	ctx    context.Context
	env    environment.Env
	policy core.Policy
	params EvalParams

	lastEval    int64
	best        float64
	evaluations []Evaluation
}

type EvalParams struct {
	Freq            int64
	Episodes        int
	MaxSteps        int
	BestModelPath   string
	RewardThreshold *float64
}

type EvalOption func(*EvalParams)

// WithEvalFreq sets the number of timesteps between evaluations.
func WithEvalFreq(n int64) EvalOption {
	return func(p *EvalParams) {
		p.Freq = n
	}
}

func WithEvalEpisodes(n int) EvalOption {
	return func(p *EvalParams) {
		p.Episodes = n
	}
}

func WithEvalMaxSteps(n int) EvalOption {
	return func(p *EvalParams) {
		p.MaxSteps = n
	}
}

// WithBestModelPath saves the policy there whenever the mean reward improves.
func WithBestModelPath(path string) EvalOption {
	return func(p *EvalParams) {
		p.BestModelPath = path
	}
}

func WithRewardThreshold(r float64) EvalOption {
	return func(p *EvalParams) {
		p.RewardThreshold = &r
	}
}

func defaultEvalParams() *EvalParams {
	return &EvalParams{
		Freq:     5000,
		Episodes: 5,
	}
}

func NewEvalCallback(ctx context.Context, env environment.Env, policy core.Policy, opts ...EvalOption) (*EvalCallback, error) {
	if env == nil {
		return nil, errors.New("eval callback needs an environment")
	}
	if policy == nil {
		return nil, errors.New("eval callback needs a policy")
	}
	params := defaultEvalParams()
	for _, opt := range opts {
		opt(params)
	}
	if params.Freq <= 0 {
		return nil, fmt.Errorf("eval frequency must be > 0, got %d", params.Freq)
	}
	if params.Episodes < 1 {
		return nil, fmt.Errorf("eval episodes must be at least 1, got %d", params.Episodes)
	}
	if _, ok := policy.(Saver); params.BestModelPath != "" && !ok {
		return nil, fmt.Errorf("policy %T cannot be saved to %s", policy, params.BestModelPath)
	}

	return &EvalCallback{
		ctx:    ctx,
		env:    env,
		policy: policy,
		params: *params,
		best:   math.Inf(-1),
	}, nil
}

// OnStep implements core.Callback.
func (e *EvalCallback) OnStep(step *core.StepContext) (bool, error) {
	if step.NumTimesteps-e.lastEval < e.params.Freq {
		return true, nil
	}
	e.lastEval = step.NumTimesteps

	results, err := Evaluate(e.ctx, e.env, e.policy, e.params.Episodes, e.params.MaxSteps)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	rewards := make([]float64, len(results))
	for i, r := range results {
		rewards[i] = r.Reward
	}
	mean, std := stat.MeanStdDev(rewards, nil)
	if len(rewards) == 1 {
		std = 0
	}
	ev := Evaluation{
		Timesteps:   step.NumTimesteps,
		MeanReward:  mean,
		StdReward:   std,
		SuccessRate: SuccessRate(results),
	}
	e.evaluations = append(e.evaluations, ev)
	log.Infof("eval at %d timesteps: mean_reward=%.3f +/- %.3f success_rate=%.2f",
		ev.Timesteps, ev.MeanReward, ev.StdReward, ev.SuccessRate)

	if mean <= e.best {
		return true, nil
	}
	e.best = mean
	if e.params.BestModelPath != "" {
		if err := e.policy.(Saver).Save(e.params.BestModelPath); err != nil {
			return false, fmt.Errorf("failed to save best model: %w", err)
		}
		log.Infof("new best mean reward %.3f, saved to %s", mean, e.params.BestModelPath)
	}
	if t := e.params.RewardThreshold; t != nil && mean >= *t {
		log.Successf("mean reward %.3f reached threshold %.3f, stopping", mean, *t)
		return false, nil
	}
	return true, nil
}

// Best returns the best mean reward so far, -Inf before the first evaluation.
func (e *EvalCallback) Best() float64 {
	return e.best
}

func (e *EvalCallback) Evaluations() []Evaluation {
	return append([]Evaluation(nil), e.evaluations...)
}
