package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aunum/log"
	"github.com/spf13/cobra"

	"github.com/boristopalov/armtrain/pkg/agent"
	"github.com/boristopalov/armtrain/pkg/callback"
	"github.com/boristopalov/armtrain/pkg/config"
	"github.com/boristopalov/armtrain/pkg/core"
	"github.com/boristopalov/armtrain/pkg/environment"
	"github.com/boristopalov/armtrain/pkg/experiment"
	"github.com/boristopalov/armtrain/pkg/judge"
	"github.com/boristopalov/armtrain/pkg/messaging"
	"github.com/boristopalov/armtrain/pkg/plot"
	"github.com/boristopalov/armtrain/pkg/providers"
	"github.com/boristopalov/armtrain/pkg/runs"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller and record episode success",
		RunE:  runExperiment,
	}
	flags := runCmd.Flags()
	flags.String("name", "", "run name")
	flags.String("env", "", "environment ID")
	flags.Int("num-envs", 0, "number of parallel environments")
	flags.Int64("timesteps", 0, "total timesteps")
	flags.Int64("seed", 0, "random seed")
	flags.String("success-log", "", "success CSV path")
	flags.String("monitor-log", "", "monitor CSV path")
	flags.String("model", "", "where to save the controller")
	flags.String("registry", "", "run registry database")
	return runCmd
}

// loadConfig reads --config when given and applies any flags that were set.
func loadConfig(cmd *cobra.Command) (*config.ExperimentConfig, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	stringFlags := map[string]*string{
		"name":        &cfg.Name,
		"env":         &cfg.EnvID,
		"success-log": &cfg.SuccessLog,
		"monitor-log": &cfg.MonitorLog,
		"model":       &cfg.ModelPath,
		"registry":    &cfg.Registry,
	}
	for name, dst := range stringFlags {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Lookup("num-envs") != nil && flags.Changed("num-envs") {
		cfg.NumEnvs, _ = flags.GetInt("num-envs")
	}
	if flags.Lookup("timesteps") != nil && flags.Changed("timesteps") {
		cfg.Timesteps, _ = flags.GetInt64("timesteps")
	}
	if flags.Lookup("seed") != nil && flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}
	return cfg, cfg.Validate()
}

func runExperiment(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := runs.Open(cfg.Registry)
	if err != nil {
		return err
	}
	defer store.Close()

	run := &runs.Run{
		Name:       cfg.Name,
		EnvID:      cfg.EnvID,
		NumEnvs:    cfg.NumEnvs,
		SuccessLog: cfg.SuccessLog,
		MonitorLog: cfg.MonitorLog,
	}
	if err := store.Start(run); err != nil {
		return err
	}
	log.Infof("starting run %s (%s) on %s with %d env(s)", run.Name, run.ID, run.EnvID, run.NumEnvs)

	status, runErr := train(ctx, cfg, run.ID)

	result := runs.Result{Timesteps: status.timesteps}
	if status.episodes > 0 {
		records, err := plot.ReadSuccess(cfg.SuccessLog)
		if err != nil {
			log.Warningf("failed to read success log: %v", err)
		} else if len(records) >= status.episodes {
			summary := plot.Summarize(records[len(records)-status.episodes:])
			result.Episodes = summary.Episodes
			result.Successes = summary.Successes
			result.SuccessRate = summary.Rate
		}
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	if err := store.Finish(run.ID, result); err != nil {
		log.Warningf("failed to record run result: %v", err)
	}

	if runErr != nil {
		return runErr
	}
	log.Successf("run %s finished: %d timesteps, %d episodes, success rate %.2f",
		run.ID, result.Timesteps, result.Episodes, result.SuccessRate)
	return nil
}

type trainStatus struct {
	timesteps int64
	episodes  int
}

func train(ctx context.Context, cfg *config.ExperimentConfig, runID string) (trainStatus, error) {
	var status trainStatus

	env, err := environment.MakeVec(cfg.EnvID, cfg.NumEnvs, cfg.Seed, func(i int, env environment.Env) (environment.Env, error) {
		return environment.NewMonitor(env, monitorPath(cfg.MonitorLog, i, cfg.NumEnvs), runID)
	})
	if err != nil {
		return status, err
	}
	defer env.Close()

	controller := agent.NewController(
		agent.WithGain(cfg.Policy.Gain),
		agent.WithNoiseSigma(cfg.Policy.NoiseSigma),
		agent.WithSeed(cfg.Seed),
	)

	loggerOpts := []callback.SuccessLoggerOption{callback.WithPath(cfg.SuccessLog)}
	if cfg.Judge.Provider != "" {
		client, err := providers.New(ctx, cfg.Judge.Provider)
		if err != nil {
			return status, fmt.Errorf("failed to create judge client: %w", err)
		}
		var judgeOpts []judge.JudgeOption
		if cfg.Judge.Task != "" {
			judgeOpts = append(judgeOpts, judge.WithTask(cfg.Judge.Task))
		}
		j := judge.New(client, cfg.Judge.Model, judgeOpts...)
		loggerOpts = append(loggerOpts, callback.WithSuccessFunc(j.SuccessFunc(ctx)))
	}
	successLogger, err := callback.NewSuccessLogger(loggerOpts...)
	if err != nil {
		return status, err
	}

	broker := messaging.NewBroker()
	defer broker.Reset()
	progress := messaging.NewProgress(controller.GetID(), cfg.ReportEvery)
	if err := progress.Start(ctx, broker); err != nil {
		return status, err
	}
	defer progress.Stop(broker)

	var cb core.Callback = successLogger
	if cfg.Eval.Freq > 0 {
		evalEnv, err := environment.Make(cfg.EnvID, cfg.Seed+int64(cfg.NumEnvs))
		if err != nil {
			return status, err
		}
		defer evalEnv.Close()

		evalOpts := []experiment.EvalOption{
			experiment.WithEvalFreq(cfg.Eval.Freq),
			experiment.WithEvalEpisodes(cfg.Eval.Episodes),
			experiment.WithBestModelPath(cfg.Eval.BestModelPath),
		}
		if cfg.Eval.RewardThreshold != nil {
			evalOpts = append(evalOpts, experiment.WithRewardThreshold(*cfg.Eval.RewardThreshold))
		}
		eval, err := experiment.NewEvalCallback(ctx, evalEnv, controller, evalOpts...)
		if err != nil {
			return status, err
		}
		cb = callback.List{eval, successLogger}
	}

	runner, err := experiment.NewRunner(env, controller,
		experiment.WithName(cfg.Name),
		experiment.WithTotalTimesteps(cfg.Timesteps),
		experiment.WithCallback(cb),
		experiment.WithBroker(broker),
	)
	if err != nil {
		return status, err
	}

	runErr := runner.Run(ctx)
	status.timesteps = runner.GetStatus().Timesteps
	status.episodes = successLogger.Episode()

	if cfg.ModelPath != "" {
		if err := controller.Save(cfg.ModelPath); err != nil {
			return status, err
		}
		log.Infof("saved controller to %s", cfg.ModelPath)
	}
	return status, runErr
}

// monitorPath gives each environment its own file when there is more than
// one: logs/monitor.csv becomes logs/monitor.0.csv, logs/monitor.1.csv, ...
func monitorPath(base string, i, n int) string {
	if base == "" || n == 1 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s.%d%s", strings.TrimSuffix(base, ext), i, ext)
}
