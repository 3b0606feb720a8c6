package main

import (
	"github.com/aunum/log"
	"github.com/spf13/cobra"

	"github.com/boristopalov/armtrain/pkg/agent"
	"github.com/boristopalov/armtrain/pkg/environment"
	"github.com/boristopalov/armtrain/pkg/experiment"
)

func newEvalCmd() *cobra.Command {
	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a saved controller",
		RunE:  evaluateModel,
	}
	flags := evalCmd.Flags()
	flags.String("model", "", "saved controller (defaults to the config model_path)")
	flags.String("env", "", "environment ID")
	flags.Int("episodes", 10, "number of evaluation episodes")
	flags.Int("max-steps", 0, "step limit per episode, 0 for the environment limit")
	flags.Int64("seed", 0, "random seed")
	return evalCmd
}

func evaluateModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	episodes, _ := flags.GetInt("episodes")
	maxSteps, _ := flags.GetInt("max-steps")

	controller, err := agent.Load(cfg.ModelPath)
	if err != nil {
		return err
	}
	env, err := environment.Make(cfg.EnvID, cfg.Seed)
	if err != nil {
		return err
	}
	defer env.Close()

	results, err := experiment.Evaluate(cmd.Context(), env, controller, episodes, maxSteps)
	for i, r := range results {
		log.Infof("episode %d: reward=%.3f length=%d success=%t", i, r.Reward, r.Length, r.Success)
	}
	if err != nil {
		return err
	}
	log.Successf("success rate over %d episodes: %.2f", len(results), experiment.SuccessRate(results))
	return nil
}
