package experiment

import (
	"context"
	"fmt"

	"github.com/boristopalov/armtrain/pkg/callback"
	"github.com/boristopalov/armtrain/pkg/core"
	"github.com/boristopalov/armtrain/pkg/environment"
)

// EpisodeResult is the outcome of one evaluation episode.
type EpisodeResult struct {
	Reward  float64
	Length  int
	Success bool
}

// Evaluate plays episodes with a deterministic policy. Each episode stops
// when the environment reports done or after maxSteps steps, whichever
// comes first. maxSteps <= 0 means the environment limit.
func Evaluate(ctx context.Context, env environment.Env, policy core.Policy, episodes, maxSteps int) ([]EpisodeResult, error) {
	if episodes < 0 {
		return nil, fmt.Errorf("episodes must not be negative, got %d", episodes)
	}
	if maxSteps <= 0 {
		maxSteps = env.MaxSteps()
	}

	results := make([]EpisodeResult, 0, episodes)
	for ep := 0; ep < episodes; ep++ {
		obs, _ := env.Reset()
		var result EpisodeResult
		for result.Length < maxSteps {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			default:
			}

			res := env.Step(policy.Predict(obs, true))
			result.Reward += res.Reward
			result.Length++
			obs = res.Observation
			if res.Done() {
				result.Success = callback.Truthy(res.Info[core.InfoIsSuccess])
				break
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// SuccessRate returns the fraction of successful results.
func SuccessRate(results []EpisodeResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var n int
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return float64(n) / float64(len(results))
}
