// Package environment defines the step/reset contract the runner drives and
// a small goal-reaching task that satisfies it.
package environment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/boristopalov/armtrain/pkg/core"
)

var ErrUnknownEnv = errors.New("unknown environment")

// StepResult is what an environment returns for one action.
type StepResult struct {
	Observation core.Observation
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        core.Info
}

// Done reports whether the episode ended, either way.
func (r StepResult) Done() bool {
	return r.Terminated || r.Truncated
}

// Env is a single simulated environment instance.
type Env interface {
	// ID returns the registered environment ID
	ID() string
	// Reset starts a new episode
	Reset() (core.Observation, core.Info)
	// Step advances the environment by one action
	Step(action []float64) StepResult
	// ActionDim returns the size of the action vector
	ActionDim() int
	// MaxSteps returns the episode step limit
	MaxSteps() int
	// Close releases any resources held by the environment
	Close() error
}

// Factory builds an environment from a seed.
type Factory func(seed int64) (Env, error)

var registry = map[string]Factory{
	"PointReach-v0": func(seed int64) (Env, error) {
		return NewReachEnv("PointReach-v0", WithRewardType(RewardSparse), WithSeed(seed)), nil
	},
	"PointReachDense-v0": func(seed int64) (Env, error) {
		return NewReachEnv("PointReachDense-v0", WithRewardType(RewardDense), WithSeed(seed)), nil
	},
}

// Register adds or replaces an environment factory.
func Register(id string, f Factory) {
	registry[id] = f
}

// IDs lists registered environment IDs.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Make builds a registered environment.
func Make(id string, seed int64) (Env, error) {
	f, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnv, id)
	}
	return f(seed)
}
