package core

import (
	"time"
)

// Info is the per-environment record returned alongside every step.
type Info map[string]any

// Keys used in Info records.
const (
	InfoIsSuccess           = "is_success"
	InfoTerminalObservation = "terminal_observation"
	InfoTruncated           = "TimeLimit.truncated"
	InfoEpisode             = "episode"
)

// Keys used in Locals.
const (
	LocalInfos   = "infos"
	LocalDones   = "dones"
	LocalRewards = "rewards"
	LocalActions = "actions"
	LocalNewObs  = "new_obs"
)

// Locals is the bag of loop variables a trainer exposes to its callbacks.
// Values are looked up by key; "infos" holds a single record or a sequence
// of records and "dones" holds a bool or a []bool.
type Locals map[string]any

// StepContext is handed to callbacks once per environment step.
type StepContext struct {
	// NumTimesteps is the cumulative number of steps taken by the trainer.
	NumTimesteps int64
	Locals       Locals
}

// Observation is a goal-conditioned observation.
type Observation struct {
	Observation  []float64 `yaml:"observation"`
	AchievedGoal []float64 `yaml:"achieved_goal"`
	DesiredGoal  []float64 `yaml:"desired_goal"`
}

// Clone returns a deep copy of the observation.
func (o Observation) Clone() Observation {
	return Observation{
		Observation:  append([]float64(nil), o.Observation...),
		AchievedGoal: append([]float64(nil), o.AchievedGoal...),
		DesiredGoal:  append([]float64(nil), o.DesiredGoal...),
	}
}

// Transition is a single (s, a, r, s', done) tuple.
type Transition struct {
	State     Observation
	Action    []float64
	Reward    float64
	NextState Observation
	Done      bool
}

// EpisodeSummary describes one finished episode.
type EpisodeSummary struct {
	EnvIndex  int
	Reward    float64
	Length    int
	Success   bool
	Timesteps int64
	EndedAt   time.Time
}

type ExperimentStatus struct {
	Running   bool
	StartTime time.Time
	EndTime   time.Time
	Timesteps int64
	Episodes  int
	Errors    []error
}
