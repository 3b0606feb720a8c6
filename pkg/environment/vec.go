package environment

import (
	"errors"
	"fmt"

	"github.com/boristopalov/armtrain/pkg/core"
)

// VecStep is the batched result of stepping every environment once.
type VecStep struct {
	Observations []core.Observation
	Rewards      []float64
	Dones        []bool
	Infos        []core.Info
}

// VecEnv steps several environments in lockstep on the calling goroutine.
// A finished environment is reset immediately; the last observation of the
// finished episode is kept in its info under "terminal_observation".
type VecEnv struct {
	envs []Env
	obs  []core.Observation
}

func NewVecEnv(envs ...Env) (*VecEnv, error) {
	if len(envs) == 0 {
		return nil, errors.New("vec env needs at least one environment")
	}
	return &VecEnv{envs: envs, obs: make([]core.Observation, len(envs))}, nil
}

// MakeVec builds n registered environments with consecutive seeds. wrap, if
// set, is applied to each one (e.g. to add a Monitor).
func MakeVec(id string, n int, seed int64, wrap func(i int, env Env) (Env, error)) (*VecEnv, error) {
	envs := make([]Env, 0, n)
	closeAll := func() {
		for _, e := range envs {
			e.Close()
		}
	}
	for i := 0; i < n; i++ {
		env, err := Make(id, seed+int64(i))
		if err != nil {
			closeAll()
			return nil, err
		}
		if wrap != nil {
			wrapped, err := wrap(i, env)
			if err != nil {
				env.Close()
				closeAll()
				return nil, fmt.Errorf("failed to wrap env %d: %w", i, err)
			}
			env = wrapped
		}
		envs = append(envs, env)
	}
	return NewVecEnv(envs...)
}

func (v *VecEnv) NumEnvs() int {
	return len(v.envs)
}

func (v *VecEnv) Envs() []Env {
	return v.envs
}

func (v *VecEnv) ActionDim() int {
	return v.envs[0].ActionDim()
}

func (v *VecEnv) Reset() []core.Observation {
	for i, env := range v.envs {
		v.obs[i], _ = env.Reset()
	}
	return v.Observations()
}

// Observations returns the current observation of every environment.
func (v *VecEnv) Observations() []core.Observation {
	out := make([]core.Observation, len(v.obs))
	copy(out, v.obs)
	return out
}

func (v *VecEnv) Step(actions [][]float64) (VecStep, error) {
	if len(actions) != len(v.envs) {
		return VecStep{}, fmt.Errorf("got %d actions for %d environments", len(actions), len(v.envs))
	}

	n := len(v.envs)
	out := VecStep{
		Observations: make([]core.Observation, n),
		Rewards:      make([]float64, n),
		Dones:        make([]bool, n),
		Infos:        make([]core.Info, n),
	}
	for i, env := range v.envs {
		res := env.Step(actions[i])
		info := res.Info
		if info == nil {
			info = core.Info{}
		}
		obs := res.Observation
		if res.Done() {
			info[core.InfoTerminalObservation] = res.Observation
			obs, _ = env.Reset()
		}
		v.obs[i] = obs

		out.Observations[i] = obs
		out.Rewards[i] = res.Reward
		out.Dones[i] = res.Done()
		out.Infos[i] = info
	}
	return out, nil
}

func (v *VecEnv) Close() error {
	var errs []error
	for _, env := range v.envs {
		if err := env.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
