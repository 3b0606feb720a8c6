// Package agent holds the policies the runner drives environments with.
package agent

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"

	"github.com/boristopalov/armtrain/pkg/core"
)

// Controller steers the achieved goal towards the desired goal with a
// proportional law. Outside deterministic mode it adds Gaussian action
// noise, the same exploration scheme used for off-policy actor-critic
// training.
type Controller struct {
	id         string
	gain       float64
	noiseSigma float64
	noise      distuv.Normal
}

// ControllerParams is also the on-disk format of a saved controller.
type ControllerParams struct {
	AgentID    string  `yaml:"agent_id"`
	Gain       float64 `yaml:"gain"`
	NoiseSigma float64 `yaml:"noise_sigma"`
	Seed       int64   `yaml:"-"`
}

type ControllerOption func(*ControllerParams)

func WithAgentID(id string) ControllerOption {
	return func(p *ControllerParams) {
		p.AgentID = id
	}
}

func WithGain(gain float64) ControllerOption {
	return func(p *ControllerParams) {
		p.Gain = gain
	}
}

func WithNoiseSigma(sigma float64) ControllerOption {
	return func(p *ControllerParams) {
		p.NoiseSigma = sigma
	}
}

func WithSeed(seed int64) ControllerOption {
	return func(p *ControllerParams) {
		p.Seed = seed
	}
}

func defaultControllerParams() *ControllerParams {
	return &ControllerParams{
		AgentID:    "agent-" + uuid.New().String(),
		Gain:       10,
		NoiseSigma: 0.1,
	}
}

func NewController(opts ...ControllerOption) *Controller {
	params := defaultControllerParams()
	for _, opt := range opts {
		opt(params)
	}
	return newController(params)
}

func newController(params *ControllerParams) *Controller {
	return &Controller{
		id:         params.AgentID,
		gain:       params.Gain,
		noiseSigma: params.NoiseSigma,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: math.Max(params.NoiseSigma, math.SmallestNonzeroFloat64),
			Src:   rand.NewSource(uint64(params.Seed)),
		},
	}
}

func (c *Controller) GetID() string {
	return c.id
}

func (c *Controller) Gain() float64 {
	return c.gain
}

func (c *Controller) NoiseSigma() float64 {
	return c.noiseSigma
}

// Predict implements core.Policy.
func (c *Controller) Predict(obs core.Observation, deterministic bool) []float64 {
	action := make([]float64, len(obs.DesiredGoal))
	for i := range action {
		var achieved float64
		if i < len(obs.AchievedGoal) {
			achieved = obs.AchievedGoal[i]
		}
		a := c.gain * (obs.DesiredGoal[i] - achieved)
		if !deterministic && c.noiseSigma > 0 {
			a += c.noise.Rand()
		}
		action[i] = math.Max(-1, math.Min(1, a))
	}
	return action
}

// Save writes the controller parameters as YAML.
func (c *Controller) Save(path string) error {
	data, err := yaml.Marshal(ControllerParams{
		AgentID:    c.id,
		Gain:       c.gain,
		NoiseSigma: c.noiseSigma,
	})
	if err != nil {
		return fmt.Errorf("failed to encode controller: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write controller: %w", err)
	}
	return nil
}

// Load reads a controller saved with Save. Options are applied on top of
// the saved parameters.
func Load(path string, opts ...ControllerOption) (*Controller, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read controller: %w", err)
	}
	params := defaultControllerParams()
	if err := yaml.Unmarshal(data, params); err != nil {
		return nil, fmt.Errorf("failed to decode controller %s: %w", path, err)
	}
	for _, opt := range opts {
		opt(params)
	}
	return newController(params), nil
}
