package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/boristopalov/armtrain/pkg/callback"
	"github.com/boristopalov/armtrain/pkg/environment"
)

type ExperimentConfig struct {
	Name        string       `yaml:"name"`
	EnvID       string       `yaml:"env_id"`
	NumEnvs     int          `yaml:"num_envs"`
	Timesteps   int64        `yaml:"timesteps"`
	Seed        int64        `yaml:"seed"`
	SuccessLog  string       `yaml:"success_log"`
	MonitorLog  string       `yaml:"monitor_log"`
	ModelPath   string       `yaml:"model_path"`
	Registry    string       `yaml:"registry"`
	Policy      PolicyConfig `yaml:"policy"`
	Judge       JudgeConfig  `yaml:"judge"`
	Eval        EvalConfig   `yaml:"eval"`
	ReportEvery int          `yaml:"report_every"`
}

type PolicyConfig struct {
	Gain       float64 `yaml:"gain"`
	NoiseSigma float64 `yaml:"noise_sigma"`
}

// JudgeConfig enables the LLM success fallback when Provider is set.
type JudgeConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Task     string `yaml:"task"`
}

// EvalConfig controls periodic evaluation during a run. Freq 0 disables it.
// Training stops early once a new best mean reward reaches RewardThreshold.
type EvalConfig struct {
	Freq            int64    `yaml:"freq"`
	Episodes        int      `yaml:"episodes"`
	BestModelPath   string   `yaml:"best_model_path"`
	RewardThreshold *float64 `yaml:"reward_threshold"`
}

func DefaultConfig() *ExperimentConfig {
	return &ExperimentConfig{
		Name:        "reach",
		EnvID:       "PointReach-v0",
		NumEnvs:     1,
		Timesteps:   5000,
		SuccessLog:  callback.DefaultSuccessLogPath,
		MonitorLog:  "logs/monitor.csv",
		ModelPath:   "models/controller.yaml",
		Registry:    "logs/runs.db",
		ReportEvery: 10,
		Policy: PolicyConfig{
			Gain:       10,
			NoiseSigma: 0.1,
		},
		Eval: EvalConfig{
			Freq:          5000,
			Episodes:      5,
			BestModelPath: "models/best_controller.yaml",
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. ${VAR} references are
// expanded from the environment before parsing.
func LoadConfig(path string) (*ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *ExperimentConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if env, err := environment.Make(c.EnvID, 0); err != nil {
		errs = append(errs, err)
	} else {
		env.Close()
	}
	if c.NumEnvs < 1 {
		errs = append(errs, fmt.Errorf("num_envs must be at least 1, got %d", c.NumEnvs))
	}
	if c.Timesteps < 1 {
		errs = append(errs, fmt.Errorf("timesteps must be positive, got %d", c.Timesteps))
	}
	if c.SuccessLog == "" {
		errs = append(errs, errors.New("success_log is required"))
	}
	if c.Policy.NoiseSigma < 0 {
		errs = append(errs, fmt.Errorf("policy.noise_sigma must not be negative, got %g", c.Policy.NoiseSigma))
	}
	if c.Eval.Freq < 0 {
		errs = append(errs, fmt.Errorf("eval.freq must not be negative, got %d", c.Eval.Freq))
	}
	if c.Eval.Freq > 0 && c.Eval.Episodes < 1 {
		errs = append(errs, fmt.Errorf("eval.episodes must be at least 1, got %d", c.Eval.Episodes))
	}
	if c.Judge.Provider != "" && c.Judge.Model == "" {
		errs = append(errs, errors.New("judge.model is required when judge.provider is set"))
	}
	return errors.Join(errs...)
}
