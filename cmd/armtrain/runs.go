package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/boristopalov/armtrain/pkg/runs"
)

func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE:  listRuns,
	}
	runsCmd.Flags().String("registry", "", "run registry database")
	return runsCmd
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := runs.Open(cfg.Registry)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List()
	if err != nil {
		return err
	}
	return printRuns(cmd.OutOrStdout(), list)
}

func printRuns(w io.Writer, list []*runs.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENV\tSTARTED\tEPISODES\tSUCCESS\tSTATUS")
	for _, r := range list {
		episodes, rate, state := "-", "-", "running"
		if r.Result != nil {
			episodes = fmt.Sprint(r.Result.Episodes)
			rate = fmt.Sprintf("%.2f", r.Result.SuccessRate)
			state = "done"
			if r.Result.Error != "" {
				state = "failed: " + r.Result.Error
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.EnvID, r.StartedAt.Local().Format(time.DateTime), episodes, rate, state)
	}
	return tw.Flush()
}
