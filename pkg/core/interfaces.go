package core

import (
	"context"
)

// Callback observes a training loop. It is invoked once per environment
// step; returning false asks the trainer to stop.
type Callback interface {
	OnStep(step *StepContext) (bool, error)
}

// Policy maps observations to actions.
type Policy interface {
	Predict(obs Observation, deterministic bool) []float64
}

// Learner is the seam for an external learning algorithm. The runner feeds
// it every transition and asks it to learn after each step.
type Learner interface {
	Remember(t Transition)
	Learn() error
}

// Experiment coordinates the running of experiments
type Experiment interface {
	// Run executes the experiment according to configuration
	Run(ctx context.Context) error
	// GetStatus returns current experiment status
	GetStatus() ExperimentStatus
}
