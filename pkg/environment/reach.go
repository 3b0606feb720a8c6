package environment

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/boristopalov/armtrain/pkg/core"
)

type RewardType string

const (
	RewardSparse RewardType = "sparse"
	RewardDense  RewardType = "dense"
)

const (
	reachDims              = 3
	reachActionScale       = 0.05
	reachDistanceThreshold = 0.05
	reachMaxSteps          = 50
	reachGoalRange         = 0.3
	reachWorkspace         = 0.5
)

// ReachEnv moves an end-effector point towards a sampled goal. Actions are
// displacement commands clipped to [-1, 1] per axis. The episode terminates
// with is_success when the point is within the distance threshold and is
// truncated at the step limit.
type ReachEnv struct {
	id         string
	rewardType RewardType
	threshold  float64
	maxSteps   int
	rng        *rand.Rand

	pos   []float64
	goal  []float64
	steps int
}

type ReachParams struct {
	RewardType RewardType
	Threshold  float64
	MaxSteps   int
	Seed       int64
}

type ReachOption func(*ReachParams)

func WithRewardType(t RewardType) ReachOption {
	return func(p *ReachParams) {
		p.RewardType = t
	}
}

func WithThreshold(d float64) ReachOption {
	return func(p *ReachParams) {
		p.Threshold = d
	}
}

func WithMaxSteps(n int) ReachOption {
	return func(p *ReachParams) {
		p.MaxSteps = n
	}
}

func WithSeed(seed int64) ReachOption {
	return func(p *ReachParams) {
		p.Seed = seed
	}
}

func NewReachEnv(id string, opts ...ReachOption) *ReachEnv {
	params := &ReachParams{
		RewardType: RewardSparse,
		Threshold:  reachDistanceThreshold,
		MaxSteps:   reachMaxSteps,
	}
	for _, opt := range opts {
		opt(params)
	}

	e := &ReachEnv{
		id:         id,
		rewardType: params.RewardType,
		threshold:  params.Threshold,
		maxSteps:   params.MaxSteps,
		rng:        rand.New(rand.NewSource(uint64(params.Seed))),
		pos:        make([]float64, reachDims),
		goal:       make([]float64, reachDims),
	}
	e.Reset()
	return e
}

func (e *ReachEnv) ID() string {
	return e.id
}

func (e *ReachEnv) ActionDim() int {
	return reachDims
}

func (e *ReachEnv) MaxSteps() int {
	return e.maxSteps
}

func (e *ReachEnv) Close() error {
	return nil
}

// SetState places the end-effector and goal. Used to set up scenarios.
func (e *ReachEnv) SetState(pos, goal []float64) {
	copy(e.pos, pos)
	copy(e.goal, goal)
}

func (e *ReachEnv) Reset() (core.Observation, core.Info) {
	for i := range e.pos {
		e.pos[i] = 0
		e.goal[i] = (e.rng.Float64()*2 - 1) * reachGoalRange
	}
	e.steps = 0
	return e.observe(), core.Info{core.InfoIsSuccess: false}
}

func (e *ReachEnv) Step(action []float64) StepResult {
	for i := range e.pos {
		a := 0.0
		if i < len(action) {
			a = clip(action[i], -1, 1)
		}
		e.pos[i] = clip(e.pos[i]+a*reachActionScale, -reachWorkspace, reachWorkspace)
	}
	e.steps++

	d := distance(e.pos, e.goal)
	success := d < e.threshold
	truncated := !success && e.steps >= e.maxSteps

	info := core.Info{
		core.InfoIsSuccess: success,
		"distance":         d,
	}
	if truncated {
		info[core.InfoTruncated] = true
	}

	return StepResult{
		Observation: e.observe(),
		Reward:      e.reward(d),
		Terminated:  success,
		Truncated:   truncated,
		Info:        info,
	}
}

func (e *ReachEnv) reward(d float64) float64 {
	if e.rewardType == RewardDense {
		return -d
	}
	if d < e.threshold {
		return 0
	}
	return -1
}

func (e *ReachEnv) observe() core.Observation {
	return core.Observation{
		Observation:  append([]float64(nil), e.pos...),
		AchievedGoal: append([]float64(nil), e.pos...),
		DesiredGoal:  append([]float64(nil), e.goal...),
	}
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
