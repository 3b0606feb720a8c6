package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aunum/log"
	"github.com/spf13/cobra"

	"github.com/boristopalov/armtrain/pkg/plot"
)

func newPlotCmd() *cobra.Command {
	plotCmd := &cobra.Command{
		Use:   "plot",
		Short: "Plot episode rewards and success rate",
		RunE:  plotLogs,
	}
	flags := plotCmd.Flags()
	flags.String("monitor-log", "", "monitor CSV path (defaults to the first env's file of the configured run)")
	flags.Int("num-envs", 0, "number of environments the run used")
	flags.String("success-log", "", "success CSV path")
	flags.String("out", "plots", "output directory")
	return plotCmd
}

func plotLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	monitorLog := cfg.MonitorLog
	if !cmd.Flags().Changed("monitor-log") {
		monitorLog = monitorPath(cfg.MonitorLog, 0, cfg.NumEnvs)
	}
	if monitorLog != "" {
		path := filepath.Join(out, "rewards.png")
		if err := plot.Rewards(monitorLog, path); err != nil {
			return fmt.Errorf("failed to plot rewards: %w", err)
		}
		log.Infof("wrote %s", path)
	}

	path := filepath.Join(out, "success_rate.png")
	if err := plot.SuccessRate(cfg.SuccessLog, path); err != nil {
		return fmt.Errorf("failed to plot success rate: %w", err)
	}
	log.Infof("wrote %s", path)
	return nil
}
